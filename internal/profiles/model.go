package profiles

import (
	"context"
	"errors"
	"time"
)

// DefaultMonthlyLimit is the ceiling assigned to a profile created without an explicit limit.
const DefaultMonthlyLimit = 30

var (
	// ErrNotFound is returned when an update targets a user with no profile.
	ErrNotFound = errors.New("profile not found")

	// ErrCreate is returned (wrapped) when the store rejects creating a missing profile.
	ErrCreate = errors.New("creating profile")

	// ErrLimitReached is returned by Reserve when plan_usage is already at the monthly limit.
	ErrLimitReached = errors.New("monthly limit reached")
)

// Profile matches the profiles table schema.
type Profile struct {
	UserID       string    `json:"user_id"`
	PlanUsage    int       `json:"plan_usage"`
	MonthlyLimit int       `json:"monthly_limit"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Defaults are the field values written when a profile is lazily created.
type Defaults struct {
	PlanUsage    int
	MonthlyLimit int
}

// DefaultDefaults returns the values used for a user's first profile: zero usage, limit of 30.
func DefaultDefaults() Defaults {
	return Defaults{PlanUsage: 0, MonthlyLimit: DefaultMonthlyLimit}
}

func (d Defaults) normalize() Defaults {
	if d.PlanUsage < 0 {
		d.PlanUsage = 0
	}
	if d.MonthlyLimit < 1 {
		d.MonthlyLimit = DefaultMonthlyLimit
	}
	return d
}

// Remaining returns how many generations are left this period, never negative.
func (p *Profile) Remaining() int {
	if p.PlanUsage >= p.MonthlyLimit {
		return 0
	}
	return p.MonthlyLimit - p.PlanUsage
}

// fromNullable builds a Profile from possibly absent stored fields,
// falling back to zero usage and the default limit.
func fromNullable(userID string, usage, limit *int) *Profile {
	p := &Profile{UserID: userID, MonthlyLimit: DefaultMonthlyLimit}
	if usage != nil && *usage > 0 {
		p.PlanUsage = *usage
	}
	if limit != nil && *limit > 0 {
		p.MonthlyLimit = *limit
	}
	return p
}

// Store persists one UsageProfile per user. Implementations are safe for
// concurrent use and are created once at startup.
type Store interface {
	// Find returns the profile for userID, or nil, nil when none exists.
	Find(ctx context.Context, userID string) (*Profile, error)

	// GetOrCreate returns the existing profile or creates one with defaults.
	// created reports whether this call inserted the row. Creation failures wrap ErrCreate.
	GetOrCreate(ctx context.Context, userID string, defaults Defaults) (p *Profile, created bool, err error)

	// SetUsage writes plan_usage = newValue.
	SetUsage(ctx context.Context, userID string, newValue int) error

	// Reserve atomically increments plan_usage only while it is below monthly_limit.
	// Returns ErrLimitReached (with the current profile) when the limit is already hit.
	Reserve(ctx context.Context, userID string) (*Profile, error)

	// Release undoes one Reserve, never taking plan_usage below zero.
	Release(ctx context.Context, userID string) error
}
