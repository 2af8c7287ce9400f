package preferences

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/pkg/util"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an untouched preference hash survives.
const DefaultTTL = 180 * 24 * time.Hour

const fieldSpotsLimit = "spotsLimit"

// RedisStore keeps preferences in one hash per client.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{redis: rdb, ttl: ttl}
}

func (s *RedisStore) key(clientID string) string {
	return "caniparkhere:prefs:" + util.HashString(clientID)
}

func (s *RedisStore) GetSpotsLimit(ctx context.Context, clientID string) (int, bool, error) {
	if err := checkClient(clientID); err != nil {
		return 0, false, err
	}
	raw, err := s.redis.HGet(ctx, s.key(clientID), fieldSpotsLimit).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("hget spots limit: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		// A corrupt value is treated as absent.
		return 0, false, nil
	}
	return ClampSpotsLimit(n, MaxSpotsLimit), true, nil
}

func (s *RedisStore) SetSpotsLimit(ctx context.Context, clientID string, limit int) error {
	if err := checkClient(clientID); err != nil {
		return err
	}
	key := s.key(clientID)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, fieldSpotsLimit, ClampSpotsLimit(limit, MaxSpotsLimit))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store spots limit: %w", err)
	}
	return nil
}
