package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mshop/cart-agent/internal/domain"
)

// RedisStore persists the snapshot as a JSON array under a fixed key and
// publishes a ChangeEvent on every write so other contexts can mirror it.
// The snapshot carries no TTL: the cart survives until cleared.
type RedisStore struct {
	client *redis.Client
	owner  string
	origin string
}

// NewRedisStore creates a store scoped to owner (one cart per owner key).
// origin identifies this process in published change events.
func NewRedisStore(client *redis.Client, owner, origin string) *RedisStore {
	return &RedisStore{
		client: client,
		owner:  owner,
		origin: origin,
	}
}

func (s *RedisStore) Load(ctx context.Context) ([]domain.CartLine, error) {
	data, err := s.client.Get(ctx, s.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return lines, nil
}

func (s *RedisStore) Save(ctx context.Context, lines []domain.CartLine) error {
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}

	if err := s.client.Set(ctx, s.Key(), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	s.publish(ctx, lines)
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.Key()).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	s.publish(ctx, nil)
	return nil
}

// publish is best-effort: a missed change event only delays another context
// until its next load.
func (s *RedisStore) publish(ctx context.Context, lines []domain.CartLine) {
	ev, err := json.Marshal(ChangeEvent{Origin: s.origin, Lines: lines})
	if err != nil {
		return
	}
	s.client.Publish(ctx, s.Channel(), ev)
}

// Key is the snapshot key for this owner.
func (s *RedisStore) Key() string {
	return fmt.Sprintf("cart:snapshot:%s", s.owner)
}

// Channel is the pub/sub channel change events are published on.
func (s *RedisStore) Channel() string {
	return fmt.Sprintf("cart:events:%s", s.owner)
}
