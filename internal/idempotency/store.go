package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "sugar:idem:"
	pendingMarker = "pending"
	// pendingTTL bounds how long a crashed request can block its key.
	pendingTTL = 30 * time.Second
)

// Store keeps checkout idempotency keys in redis. A key holds a pending
// marker while its checkout runs and the created order id afterwards.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func redisKey(key string) string {
	return keyPrefix + key
}

func (s *Store) Begin(ctx context.Context, key string) (uuid.UUID, bool, error) {
	ok, err := s.client.SetNX(ctx, redisKey(key), pendingMarker, pendingTTL).Result()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency: failed to claim key: %w", err)
	}
	if ok {
		return uuid.Nil, true, nil
	}

	val, err := s.client.Get(ctx, redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; claim it again.
			return s.Begin(ctx, key)
		}
		return uuid.Nil, false, fmt.Errorf("idempotency: failed to read key: %w", err)
	}
	if val == pendingMarker {
		return uuid.Nil, false, nil
	}

	orderID, err := uuid.FromString(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("idempotency: corrupt value for key: %w", err)
	}
	return orderID, false, nil
}

func (s *Store) Complete(ctx context.Context, key string, orderID uuid.UUID) error {
	if err := s.client.Set(ctx, redisKey(key), orderID.String(), s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to store order id: %w", err)
	}
	return nil
}

func (s *Store) Abort(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to release key: %w", err)
	}
	return nil
}
