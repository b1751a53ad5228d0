package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/postplan/postplan/internal/llm"
	inats "github.com/postplan/postplan/internal/nats"
	"github.com/postplan/postplan/internal/profiles"
)

const validPlan = `{
  "strategy": "Lean on cozy behind-the-counter moments that students relate to.",
  "schedule": [
    "Day 1: Reel of the morning espresso pull",
    "Day 2: Carousel of the student discount menu",
    "Day 3: Story poll on the next seasonal latte",
    "Day 4: Barista spotlight with a latte-art clip",
    "Day 5: User-generated study-session photos",
    "Day 6: Late-night pastry restock teaser",
    "Day 7: Weekly recap with a giveaway"
  ],
  "proTip": "Post the steam shot right before 3 PM when energy dips.",
  "bestPostTime": "Weekdays 7 AM - 9 AM",
  "hashtags": "#coffee #studentlife #latteart #coffeeshop #studybreak"
}`

// memStore is an in-memory profiles.Store with injectable failures.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]*profiles.Profile

	lookupErr  error
	createErr  error
	setErr     error
	reserveErr error
	releaseErr error

	getOrCreateCalls int
	setCalls         int
	reserveCalls     int
	releaseCalls     int
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]*profiles.Profile)}
}

func (m *memStore) seed(userID string, usage, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = &profiles.Profile{UserID: userID, PlanUsage: usage, MonthlyLimit: limit}
}

func (m *memStore) get(userID string) *profiles.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *memStore) calls() (getOrCreate, set, reserve, release int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateCalls, m.setCalls, m.reserveCalls, m.releaseCalls
}

func (m *memStore) Find(ctx context.Context, userID string) (*profiles.Profile, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.get(userID), nil
}

func (m *memStore) GetOrCreate(ctx context.Context, userID string, d profiles.Defaults) (*profiles.Profile, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateCalls++

	if m.lookupErr != nil {
		return nil, false, m.lookupErr
	}
	if p, ok := m.profiles[userID]; ok {
		cp := *p
		return &cp, false, nil
	}
	if m.createErr != nil {
		return nil, false, fmt.Errorf("%w: %w", profiles.ErrCreate, m.createErr)
	}

	now := time.Now()
	p := &profiles.Profile{UserID: userID, PlanUsage: d.PlanUsage, MonthlyLimit: d.MonthlyLimit, CreatedAt: now, UpdatedAt: now}
	m.profiles[userID] = p
	cp := *p
	return &cp, true, nil
}

func (m *memStore) SetUsage(ctx context.Context, userID string, newValue int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.setErr != nil {
		return m.setErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return profiles.ErrNotFound
	}
	p.PlanUsage = newValue
	return nil
}

func (m *memStore) Reserve(ctx context.Context, userID string) (*profiles.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reserveCalls++

	if m.reserveErr != nil {
		return nil, m.reserveErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	if p.PlanUsage >= p.MonthlyLimit {
		cp := *p
		return &cp, profiles.ErrLimitReached
	}
	p.PlanUsage++
	cp := *p
	return &cp, nil
}

func (m *memStore) Release(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseCalls++

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.releaseErr != nil {
		return m.releaseErr
	}
	if p, ok := m.profiles[userID]; ok && p.PlanUsage > 0 {
		p.PlanUsage--
	}
	return nil
}

// fakeBackend returns canned content and records what it was asked.
type fakeBackend struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
	last    llm.CompletionRequest

	// onComplete runs before returning, e.g. to cancel the caller's context.
	onComplete func()
}

func (f *fakeBackend) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	content, err, hook := f.content, f.err, f.onComplete
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return content, err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []inats.GenerationEvent
	err    error
}

func (p *recordingPublisher) PublishGeneration(ctx context.Context, event inats.GenerationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}
