package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bond_ratelimit:"

// Redis keeps the sliding window in a sorted set scored by Unix milliseconds
// so every gateway instance shares the same budget.
type Redis struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client, now: time.Now}
}

// Allow records the hit and counts the window in one transaction, so
// concurrent requests from one client are ordered by Redis and only those
// whose post-add count fits the limit pass. A rejected hit is removed again
// and does not consume budget.
func (s *Redis) Allow(ctx context.Context, key string, limit int, size time.Duration) (Result, error) {
	now := s.now()
	redisKey := keyPrefix + key
	member := uuid.NewString()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(now.Add(-size).UnixMilli(), 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, size)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("record rate limit hit: %w", err)
	}

	resetAt := now.Add(size)
	if first := oldest.Val(); len(first) > 0 {
		resetAt = time.UnixMilli(int64(first[0].Score)).Add(size)
	}
	n := int(count.Val())
	if n > limit {
		if err := s.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return Result{}, fmt.Errorf("release rejected rate limit hit: %w", err)
		}
		return Result{Limit: limit, ResetAt: resetAt}, nil
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - n,
		ResetAt:   resetAt,
	}, nil
}
