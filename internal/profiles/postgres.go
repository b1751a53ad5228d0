package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps profiles in the profiles table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the shared connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const profileColumns = `plan_usage, monthly_limit, created_at, updated_at`

func scanProfile(row pgx.Row, userID string) (*Profile, error) {
	var usage, limit *int
	p := &Profile{}
	if err := row.Scan(&usage, &limit, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	n := fromNullable(userID, usage, limit)
	n.CreatedAt, n.UpdatedAt = p.CreatedAt, p.UpdatedAt
	return n, nil
}

func (s *PostgresStore) Find(ctx context.Context, userID string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	p, err := scanProfile(row, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, userID string, defaults Defaults) (*Profile, bool, error) {
	p, err := s.Find(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if p != nil {
		return p, false, nil
	}

	defaults = defaults.normalize()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO profiles (user_id, plan_usage, monthly_limit)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING `+profileColumns, userID, defaults.PlanUsage, defaults.MonthlyLimit)
	p, err = scanProfile(row, userID)
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	// Lost the insert race to a concurrent request; the row exists now.
	p, err = s.Find(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, fmt.Errorf("%w: row vanished after conflict", ErrCreate)
	}
	return p, false, nil
}

func (s *PostgresStore) SetUsage(ctx context.Context, userID string, newValue int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET plan_usage = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, newValue)
	if err != nil {
		return fmt.Errorf("updating plan usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating plan usage: %w", ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Reserve(ctx context.Context, userID string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE profiles
		 SET plan_usage = COALESCE(plan_usage, 0) + 1,
		     updated_at = NOW()
		 WHERE user_id = $1
		   AND COALESCE(plan_usage, 0) < COALESCE(NULLIF(monthly_limit, 0), $2)
		 RETURNING `+profileColumns, userID, DefaultMonthlyLimit)
	p, err := scanProfile(row, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserving plan usage: %w", err)
	}

	current, err := s.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("reserving plan usage: %w", ErrNotFound)
	}
	return current, ErrLimitReached
}

func (s *PostgresStore) Release(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE profiles
		 SET plan_usage = GREATEST(COALESCE(plan_usage, 0) - 1, 0),
		     updated_at = NOW()
		 WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("releasing plan usage: %w", err)
	}
	return nil
}
