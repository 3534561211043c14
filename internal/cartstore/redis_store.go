package cartstore

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"medishop/backend/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*domain.Cart, bool, error) {
	val, err := s.client.Get(ctx, cartKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(val), &cart); err != nil {
		return nil, false, err
	}
	return &cart, true, nil
}

// Save writes the cart keeping whatever TTL the key already carries, then
// arms the TTL only when the key has none (fresh cart). Mutating a cart must
// not push its expiry out past the original 24h window.
func (s *RedisStore) Save(ctx context.Context, cart domain.Cart) error {
	payload, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	key := cartKey(cart.SessionID)
	if err := s.client.SetArgs(ctx, key, payload, redis.SetArgs{KeepTTL: true}).Err(); err != nil {
		return err
	}
	return s.client.ExpireNX(ctx, key, domain.CartTTL).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, cartKey(sessionID)).Err()
}

func cartKey(sessionID string) string {
	return "cart:" + sessionID
}
