package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEventStore is the production idempotency guard. SET NX is the atomic
// check-and-set; the TTL bounds the membership set to the platform's
// redelivery window, so the set cannot grow without bound.
type RedisEventStore struct {
	rdb *redis.Client
	ttl time.Duration
}

const eventKeyPrefix = "telephony:event:"

func NewRedisEventStore(rdb *redis.Client, ttl time.Duration) *RedisEventStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisEventStore{rdb: rdb, ttl: ttl}
}

func (s *RedisEventStore) RecordEventSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, eventKeyPrefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
