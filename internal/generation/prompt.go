package generation

import (
	"fmt"
	"strings"
)

const (
	systemPrompt = "You are a senior social media marketing strategist."

	defaultAudience       = "General public"
	defaultAudienceInline = "your audience"
)

// Prompt is the system/user message pair sent to the text backend.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the plan instructions for a validated request.
// The output depends only on the request.
func BuildPrompt(req Request) Prompt {
	audience := req.Audience
	audienceLine := audience
	audienceInline := audience
	if audience == "" {
		audienceLine = defaultAudience
		audienceInline = defaultAudienceInline
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Niche: %s\n", req.Niche)
	fmt.Fprintf(&b, "Target Audience: %s\n", audienceLine)
	fmt.Fprintf(&b, "Platform: %s\n", req.Platform)
	fmt.Fprintf(&b, "Goal: %s\n\n", req.Goal)

	b.WriteString("TASK: Create a 7-Day Social Media Plan.\n\n")
	b.WriteString("Output Sections:\n")

	b.WriteString("1. Strategy Summary:\n")
	fmt.Fprintf(&b, "   - Focus on how to appeal to this %s on %s.\n\n", audienceInline, req.Platform)

	b.WriteString("2. Weekly Schedule (7 Days):\n")
	b.WriteString("   - Exactly 7 entries, one per day, each day must be actionable.\n")
	fmt.Fprintf(&b, "   - Tailor every post to %s and to how people use %s ", audienceInline, req.Platform)
	b.WriteString("(e.g., if the audience is students, post about budget offers or late-night food).\n\n")

	b.WriteString("3. Pro Tip:\n")
	b.WriteString("   - Give ONE specific insider secret or psychology hack for this niche on this platform.\n\n")

	b.WriteString("4. Best Time to Post:\n")
	fmt.Fprintf(&b, "   - Suggest the ideal time slot to post on %s for %s to achieve the goal %s.\n",
		req.Platform, audienceInline, req.Goal)
	b.WriteString("   - Keep it short and human-readable, e.g. \"7 PM - 9 PM\" or \"Weekdays 9 AM\".\n\n")

	b.WriteString("5. Viral Hashtags:\n")
	b.WriteString("   - 5-10 relevant hashtags in a single space-separated string.\n\n")

	b.WriteString("Return ONLY a raw JSON object, no prose and no markdown, with exactly these keys:\n")
	b.WriteString(`{
  "strategy": "Summary text...",
  "schedule": ["Day 1 task...", "Day 2 task...", "Day 3 task...", "Day 4 task...", "Day 5 task...", "Day 6 task...", "Day 7 task..."],
  "proTip": "Secret tip here...",
  "bestPostTime": "Time slot here...",
  "hashtags": "#tag1 #tag2"
}`)
	b.WriteString("\n")

	return Prompt{System: systemPrompt, User: b.String()}
}
