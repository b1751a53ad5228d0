package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UsageEvent matches the usage_events table schema.
type UsageEvent struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	EventType    string          `json:"event_type"`
	Severity     string          `json:"severity"`
	RequestID    string          `json:"request_id,omitempty"`
	PlanUsage    int             `json:"plan_usage"`
	MonthlyLimit int             `json:"monthly_limit"`
	Details      json.RawMessage `json:"details,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for usage event queries.
type ListParams struct {
	EventType string
	Severity  string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
