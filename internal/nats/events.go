package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "POSTPLAN_EVENTS"
)

// Subject constants.
const (
	SubjectGenerationEvent = "postplan.events.generation"
)

// Generation event types.
const (
	EventGenerationSucceeded = "generation_succeeded"
	EventGenerationFailed    = "generation_failed"
	EventQuotaExceeded       = "quota_exceeded"
	EventUsageCommitFailed   = "usage_commit_failed"
	EventProfileCreated      = "profile_created"
)

// GenerationEvent is published for every terminal outcome of a plan generation
// and for side effects worth auditing (profile creation, lost usage increments).
type GenerationEvent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	RequestID    string    `json:"request_id,omitempty"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	Stage        string    `json:"stage,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	Goal         string    `json:"goal,omitempty"`
	PlanUsage    int       `json:"plan_usage"`
	MonthlyLimit int       `json:"monthly_limit"`
	Details      string    `json:"details,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
