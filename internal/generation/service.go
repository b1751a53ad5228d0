package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/postplan/postplan/internal/llm"
	"github.com/postplan/postplan/internal/metrics"
	mw "github.com/postplan/postplan/internal/middleware"
	inats "github.com/postplan/postplan/internal/nats"
	"github.com/postplan/postplan/internal/profiles"
)

// Stages reported in logs and events.
const (
	stageValidate       = "validate"
	stageResolveProfile = "resolve_profile"
	stageEnforceQuota   = "enforce_quota"
	stageGenerate       = "generate"
	stageParse          = "parse"
	stageCommitUsage    = "commit_usage"
	stageReleaseUsage   = "release_usage"
)

const eventPublishTimeout = 2 * time.Second

// EventPublisher receives generation outcomes. *nats.Publisher satisfies it.
type EventPublisher interface {
	PublishGeneration(ctx context.Context, event inats.GenerationEvent) error
}

// Options are fixed for the life of a Service.
type Options struct {
	Model       string
	Temperature float64
	Defaults    profiles.Defaults

	// Strict reserves usage with a conditional increment before calling the
	// backend, and releases it if generation fails.
	Strict bool
}

// Service turns a generation request into a quota-checked, model-backed plan.
//
// In the default mode the quota check and the usage increment are separate
// store calls. Concurrent requests for the same user that all pass the check
// before any of them commits can each succeed, so usage may exceed the limit by
// up to the number of such in-flight requests, and two commits computed from
// the same read may record one increment instead of two. Options.Strict closes
// both gaps at the cost of a release write on failed generations.
type Service struct {
	store    profiles.Store
	backend  llm.Backend
	events   EventPublisher
	validate *validator.Validate
	opts     Options
}

// NewService wires the gateway. events may be nil.
func NewService(store profiles.Store, backend llm.Backend, events EventPublisher, opts Options) *Service {
	if opts.Defaults == (profiles.Defaults{}) {
		opts.Defaults = profiles.DefaultDefaults()
	}
	return &Service{
		store:    store,
		backend:  backend,
		events:   events,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
}

// Generate runs one plan generation. Every failure is an *Error; a failed
// usage commit is logged and does not fail the call.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	req = req.normalized()

	if err := s.validateRequest(req); err != nil {
		slog.Debug("generation request rejected", "error", err, "stage", stageValidate)
		metrics.GenerationsTotal.WithLabelValues(KindValidation.String()).Inc()
		return nil, err
	}

	log := slog.With("user_id", req.UserID, "request_id", mw.GetRequestID(ctx))

	profile, gErr := s.resolveProfile(ctx, log, req)
	if gErr != nil {
		return nil, s.fail(ctx, log, req, stageResolveProfile, profile, gErr)
	}

	if s.opts.Strict {
		profile, gErr = s.reserve(ctx, req.UserID)
	} else if profile.PlanUsage >= profile.MonthlyLimit {
		gErr = quotaError(profile.PlanUsage, profile.MonthlyLimit)
	}
	if gErr != nil {
		return nil, s.fail(ctx, log, req, stageEnforceQuota, profile, gErr)
	}

	prompt := BuildPrompt(req)

	start := time.Now()
	content, err := s.backend.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Model:        s.opts.Model,
		Temperature:  s.opts.Temperature,
		JSONMode:     true,
	})
	metrics.BackendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.releaseReservation(ctx, log, req, profile)
		return nil, s.fail(ctx, log, req, stageGenerate, profile,
			internalError(KindBackend, msgInternal, err))
	}

	result, err := ParseResult(content)
	if err != nil {
		s.releaseReservation(ctx, log, req, profile)
		return nil, s.fail(ctx, log, req, stageParse, profile,
			internalError(KindMalformedResponse, msgInvalidResponse, err))
	}

	if !s.opts.Strict {
		profile = s.commitUsage(ctx, log, req, profile)
	}

	metrics.GenerationsTotal.WithLabelValues("success").Inc()
	log.Info("plan generated",
		"platform", req.Platform,
		"goal", req.Goal,
		"plan_usage", profile.PlanUsage,
		"monthly_limit", profile.MonthlyLimit,
	)
	s.publish(ctx, log, req, inats.EventGenerationSucceeded, "info", "", profile, "")

	return result, nil
}

// Usage reports the caller's consumption, creating the profile on first use.
func (s *Service) Usage(ctx context.Context, userID string) (*Usage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationError(msgMissingFields + ": userId")
	}

	log := slog.With("user_id", userID, "request_id", mw.GetRequestID(ctx))

	profile, gErr := s.resolveProfile(ctx, log, Request{UserID: userID})
	if gErr != nil {
		log.Error("usage lookup failed", "error", gErr, "stage", stageResolveProfile)
		return nil, gErr
	}

	return &Usage{Current: profile.PlanUsage, Limit: profile.MonthlyLimit}, nil
}

func (s *Service) validateRequest(req Request) *Error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError(err.Error())
	}

	var missing, invalid []string
	for _, fe := range verrs {
		name := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			missing = append(missing, name)
		case "oneof":
			invalid = append(invalid, fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "max":
			invalid = append(invalid, fmt.Sprintf("%s must be at most %s characters", name, fe.Param()))
		default:
			invalid = append(invalid, fmt.Sprintf("%s is invalid", name))
		}
	}

	if len(missing) > 0 {
		return validationError(msgMissingFields + ": " + strings.Join(missing, ", "))
	}
	return validationError(strings.Join(invalid, "; "))
}

func jsonFieldName(field string) string {
	switch field {
	case "UserID":
		return "userId"
	default:
		return strings.ToLower(field[:1]) + field[1:]
	}
}

func (s *Service) resolveProfile(ctx context.Context, log *slog.Logger, req Request) (*profiles.Profile, *Error) {
	profile, created, err := s.store.GetOrCreate(ctx, req.UserID, s.opts.Defaults)
	if err != nil {
		if errors.Is(err, profiles.ErrCreate) {
			return nil, internalError(KindProfileCreation, msgProfileCreation, err)
		}
		return nil, internalError(KindProfileStore, msgInternal, err)
	}

	if created {
		metrics.ProfilesCreatedTotal.Inc()
		log.Info("profile created", "plan_usage", profile.PlanUsage, "monthly_limit", profile.MonthlyLimit)
		s.publish(ctx, log, req, inats.EventProfileCreated, "info", stageResolveProfile, profile, "")
	}

	return profile, nil
}

func (s *Service) reserve(ctx context.Context, userID string) (*profiles.Profile, *Error) {
	profile, err := s.store.Reserve(ctx, userID)
	switch {
	case err == nil:
		return profile, nil
	case errors.Is(err, profiles.ErrLimitReached) && profile != nil:
		return profile, quotaError(profile.PlanUsage, profile.MonthlyLimit)
	default:
		return profile, internalError(KindProfileStore, msgInternal, err)
	}
}

// commitUsage records one more generation. The increment is written even if
// the caller has gone away, since the plan was already produced.
func (s *Service) commitUsage(ctx context.Context, log *slog.Logger, req Request, profile *profiles.Profile) *profiles.Profile {
	next := profile.PlanUsage + 1
	if err := s.store.SetUsage(context.WithoutCancel(ctx), req.UserID, next); err != nil {
		metrics.UsageCommitFailuresTotal.Inc()
		log.Error("usage increment failed, returning result anyway",
			"error", err,
			"stage", stageCommitUsage,
			"plan_usage", profile.PlanUsage,
		)
		s.publish(ctx, log, req, inats.EventUsageCommitFailed, "error", stageCommitUsage, profile, err.Error())
		return profile
	}

	committed := *profile
	committed.PlanUsage = next
	return &committed
}

func (s *Service) releaseReservation(ctx context.Context, log *slog.Logger, req Request, profile *profiles.Profile) {
	if !s.opts.Strict {
		return
	}
	if err := s.store.Release(context.WithoutCancel(ctx), req.UserID); err != nil {
		metrics.UsageCommitFailuresTotal.Inc()
		log.Error("usage release failed", "error", err, "stage", stageReleaseUsage)
		s.publish(ctx, log, req, inats.EventUsageCommitFailed, "error", stageReleaseUsage, profile, err.Error())
	}
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, req Request, stage string, profile *profiles.Profile, gErr *Error) error {
	metrics.GenerationsTotal.WithLabelValues(gErr.Kind.String()).Inc()

	if gErr.Kind == KindQuotaExceeded {
		log.Info("monthly limit reached",
			"stage", stage,
			"plan_usage", gErr.Usage.Current,
			"monthly_limit", gErr.Usage.Limit,
		)
		s.publish(ctx, log, req, inats.EventQuotaExceeded, "warn", stage, profile, "")
		return gErr
	}

	log.Error("generation failed", "error", gErr.Err, "kind", gErr.Kind.String(), "stage", stage)
	s.publish(ctx, log, req, inats.EventGenerationFailed, "error", stage, profile, gErr.Kind.String())
	return gErr
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, req Request, eventType, severity, stage string, profile *profiles.Profile, details string) {
	if s.events == nil {
		return
	}

	event := inats.GenerationEvent{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		RequestID: mw.GetRequestID(ctx),
		EventType: eventType,
		Severity:  severity,
		Stage:     stage,
		Platform:  req.Platform,
		Goal:      req.Goal,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if profile != nil {
		event.PlanUsage = profile.PlanUsage
		event.MonthlyLimit = profile.MonthlyLimit
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := s.events.PublishGeneration(pubCtx, event); err != nil {
		log.Warn("failed to publish generation event", "error", err, "event_type", eventType)
	}
}
