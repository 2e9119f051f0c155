package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// keyPrefix namespaces every bucket key.
const keyPrefix = "automod:ratelimit:"

// recordScript trims the bucket to the window, optionally refuses a full
// window and otherwise adds the event. It returns {recorded, count, retry_ms}.
var recordScript = rueidis.NewLuaScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if limit > 0 and count >= limit then
	local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local retry = 0
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, count, retry}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, count + 1, 0}
`)

// RedisStore keeps buckets as sorted sets so that several bot processes
// share the same limits. Scores are event times in milliseconds.
type RedisStore struct {
	client rueidis.Client
}

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Record implements Store.
func (s *RedisStore) Record(
	ctx context.Context, bucket string, now time.Time, window time.Duration, limit int,
) (Result, error) {
	nowMs := now.UnixMilli()

	values, err := recordScript.Exec(ctx, s.client, []string{keyPrefix + bucket}, []string{
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(window.Milliseconds(), 10),
		strconv.Itoa(limit),
		strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString(),
	}).AsIntSlice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to record rate limit event: %w", err)
	}

	if len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply of length %d", len(values))
	}

	return Result{
		Recorded:   values[0] == 1,
		Count:      int(values[1]),
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context, bucket string, now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window).UnixMilli()

	count, err := s.client.Do(ctx, s.client.B().Zcount().
		Key(keyPrefix+bucket).
		Min("("+strconv.FormatInt(cutoff, 10)).
		Max("+inf").
		Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit events: %w", err)
	}

	return int(count), nil
}
