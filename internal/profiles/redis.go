package profiles

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const profileKeyPrefix = "profile:"

// Lua scripts keep each read-modify-write on a profile hash atomic.
var (
	createScript = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 1 then
			return 0
		end
		redis.call('HSET', KEYS[1],
			'plan_usage', ARGV[1],
			'monthly_limit', ARGV[2],
			'created_at', ARGV[3],
			'updated_at', ARGV[3])
		return 1
	`)

	setUsageScript = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return 0
		end
		redis.call('HSET', KEYS[1], 'plan_usage', ARGV[1], 'updated_at', ARGV[2])
		return 1
	`)

	reserveScript = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return {-1, 0, 0}
		end
		local used = tonumber(redis.call('HGET', KEYS[1], 'plan_usage') or '0') or 0
		local limit = tonumber(redis.call('HGET', KEYS[1], 'monthly_limit') or '0') or 0
		if limit <= 0 then
			limit = tonumber(ARGV[1])
		end
		if used >= limit then
			return {0, used, limit}
		end
		used = used + 1
		redis.call('HSET', KEYS[1], 'plan_usage', used, 'updated_at', ARGV[2])
		return {1, used, limit}
	`)

	releaseScript = redis.NewScript(`
		if redis.call('EXISTS', KEYS[1]) == 0 then
			return 0
		end
		local used = tonumber(redis.call('HGET', KEYS[1], 'plan_usage') or '0') or 0
		if used > 0 then
			used = used - 1
		end
		redis.call('HSET', KEYS[1], 'plan_usage', used, 'updated_at', ARGV[1])
		return 1
	`)
)

// RedisStore keeps each profile in a hash at profile:{userID}.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Store backed by the shared Redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func profileKey(userID string) string {
	return profileKeyPrefix + userID
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *RedisStore) Find(ctx context.Context, userID string) (*Profile, error) {
	vals, err := s.client.HGetAll(ctx, profileKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", profileKey(userID), err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return profileFromHash(userID, vals), nil
}

func profileFromHash(userID string, vals map[string]string) *Profile {
	var usage, limit *int
	if v, err := strconv.Atoi(vals["plan_usage"]); err == nil {
		usage = &v
	}
	if v, err := strconv.Atoi(vals["monthly_limit"]); err == nil {
		limit = &v
	}
	p := fromNullable(userID, usage, limit)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, vals["created_at"])
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, vals["updated_at"])
	return p
}

func (s *RedisStore) GetOrCreate(ctx context.Context, userID string, defaults Defaults) (*Profile, bool, error) {
	p, err := s.Find(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if p != nil {
		return p, false, nil
	}

	defaults = defaults.normalize()
	res, err := createScript.Run(ctx, s.client, []string{profileKey(userID)},
		defaults.PlanUsage, defaults.MonthlyLimit, nowString()).Int()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	p, err = s.Find(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, fmt.Errorf("%w: hash missing after create", ErrCreate)
	}
	return p, res == 1, nil
}

func (s *RedisStore) SetUsage(ctx context.Context, userID string, newValue int) error {
	res, err := setUsageScript.Run(ctx, s.client, []string{profileKey(userID)},
		newValue, nowString()).Int()
	if err != nil {
		return fmt.Errorf("updating plan usage: %w", err)
	}
	if res == 0 {
		return fmt.Errorf("updating plan usage: %w", ErrNotFound)
	}
	return nil
}

func (s *RedisStore) Reserve(ctx context.Context, userID string) (*Profile, error) {
	vals, err := reserveScript.Run(ctx, s.client, []string{profileKey(userID)},
		DefaultMonthlyLimit, nowString()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("reserving plan usage: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("reserving plan usage: unexpected script result %v", vals)
	}
	if vals[0] < 0 {
		return nil, fmt.Errorf("reserving plan usage: %w", ErrNotFound)
	}

	p, err := s.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("reserving plan usage: %w", ErrNotFound)
	}
	// Report the values the script saw, not a later read.
	p.PlanUsage, p.MonthlyLimit = int(vals[1]), int(vals[2])
	if vals[0] == 0 {
		return p, ErrLimitReached
	}
	return p, nil
}

func (s *RedisStore) Release(ctx context.Context, userID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{profileKey(userID)}, nowString()).Err(); err != nil {
		return fmt.Errorf("releasing plan usage: %w", err)
	}
	return nil
}
