package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/postplan/postplan/internal/metrics"
	inats "github.com/postplan/postplan/internal/nats"
)

const consumerName = "audit-persister"

type eventInserter interface {
	Insert(ctx context.Context, e *UsageEvent) error
}

type eventRunner interface {
	Run(ctx context.Context, stream, name, filterSubject string, handle inats.HandlerFunc) error
}

// Consumer persists generation events from NATS into usage_events.
type Consumer struct {
	repo   eventInserter
	runner eventRunner
}

func NewConsumer(repo *Repository, consumers *inats.ConsumerManager) *Consumer {
	return &Consumer{repo: repo, runner: consumers}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	return c.runner.Run(ctx, inats.StreamEvents, consumerName, inats.SubjectGenerationEvent, c.handle)
}

func (c *Consumer) handle(ctx context.Context, data []byte) error {
	var event inats.GenerationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Redelivery cannot fix a bad payload.
		slog.Error("audit consumer: dropping undecodable event", "error", err)
		return nil
	}

	e := toUsageEvent(event)
	if err := c.repo.Insert(ctx, e); err != nil {
		return fmt.Errorf("persisting %s for %s: %w", event.EventType, event.UserID, err)
	}

	metrics.UsageEventsPersistedTotal.WithLabelValues(event.EventType).Inc()
	slog.Debug("audit consumer: persisted event", "event_type", event.EventType, "user_id", event.UserID)
	return nil
}

type eventDetails struct {
	Stage    string `json:"stage,omitempty"`
	Platform string `json:"platform,omitempty"`
	Goal     string `json:"goal,omitempty"`
	Message  string `json:"message,omitempty"`
}

func toUsageEvent(event inats.GenerationEvent) *UsageEvent {
	e := &UsageEvent{
		UserID:       event.UserID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		RequestID:    event.RequestID,
		PlanUsage:    event.PlanUsage,
		MonthlyLimit: event.MonthlyLimit,
		CreatedAt:    event.Timestamp,
	}

	if id, err := uuid.Parse(event.ID); err == nil {
		e.ID = id
	} else {
		e.ID = uuid.New()
	}
	if e.Severity == "" {
		e.Severity = "info"
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if data, err := json.Marshal(eventDetails{
		Stage:    event.Stage,
		Platform: event.Platform,
		Goal:     event.Goal,
		Message:  event.Details,
	}); err == nil {
		e.Details = data
	}

	return e
}
