package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScheduleDays is the number of entries a plan's schedule must contain.
const ScheduleDays = 7

// Supported channels and objectives, as offered by the dashboard form.
var (
	Platforms = []string{"instagram", "facebook", "linkedin", "twitter"}
	Goals     = []string{"sales", "brand", "engagement"}
)

// Request is the inbound body of POST /api/v1/generate.
type Request struct {
	Niche    string `json:"niche" validate:"required,max=200"`
	Audience string `json:"audience,omitempty" validate:"max=300"`
	Platform string `json:"platform" validate:"required,oneof=instagram facebook linkedin twitter"`
	Goal     string `json:"goal" validate:"required,oneof=sales brand engagement"`
	UserID   string `json:"userId" validate:"required,max=255"`
}

// normalized trims free text and lower-cases the enumerated fields.
func (r Request) normalized() Request {
	r.Niche = strings.TrimSpace(r.Niche)
	r.Audience = strings.TrimSpace(r.Audience)
	r.Platform = strings.ToLower(strings.TrimSpace(r.Platform))
	r.Goal = strings.ToLower(strings.TrimSpace(r.Goal))
	r.UserID = strings.TrimSpace(r.UserID)
	return r
}

// Result is the validated marketing plan returned to the caller.
type Result struct {
	Strategy     string   `json:"strategy"`
	Schedule     []string `json:"schedule"`
	ProTip       string   `json:"proTip"`
	BestPostTime string   `json:"bestPostTime"`
	Hashtags     string   `json:"hashtags"`
}

// Usage reports a profile's consumption against its monthly limit.
type Usage struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

type rawResult struct {
	Strategy     string          `json:"strategy"`
	Schedule     []string        `json:"schedule"`
	ProTip       string          `json:"proTip"`
	BestPostTime string          `json:"bestPostTime"`
	Hashtags     json.RawMessage `json:"hashtags"`
}

// ParseResult decodes model output and checks the plan's shape: every field
// present and non-empty, and exactly seven schedule entries.
// Hashtags given as a JSON array are joined with spaces.
func ParseResult(content string) (*Result, error) {
	var raw rawResult
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decoding model output: %w", err)
	}

	hashtags, err := parseHashtags(raw.Hashtags)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Strategy:     strings.TrimSpace(raw.Strategy),
		ProTip:       strings.TrimSpace(raw.ProTip),
		BestPostTime: strings.TrimSpace(raw.BestPostTime),
		Hashtags:     hashtags,
	}

	var missing []string
	if res.Strategy == "" {
		missing = append(missing, "strategy")
	}
	if res.ProTip == "" {
		missing = append(missing, "proTip")
	}
	if res.BestPostTime == "" {
		missing = append(missing, "bestPostTime")
	}
	if res.Hashtags == "" {
		missing = append(missing, "hashtags")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("model output missing fields: %s", strings.Join(missing, ", "))
	}

	if len(raw.Schedule) != ScheduleDays {
		return nil, fmt.Errorf("schedule has %d entries, want %d", len(raw.Schedule), ScheduleDays)
	}
	res.Schedule = make([]string, 0, ScheduleDays)
	for i, day := range raw.Schedule {
		day = strings.TrimSpace(day)
		if day == "" {
			return nil, fmt.Errorf("schedule entry %d is empty", i+1)
		}
		res.Schedule = append(res.Schedule, day)
	}

	return res, nil
}

func parseHashtags(data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.Join(strings.Fields(s), " "), nil
	}

	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return "", fmt.Errorf("hashtags must be a string or a list of strings")
	}
	return strings.Join(strings.Fields(strings.Join(tags, " ")), " "), nil
}
