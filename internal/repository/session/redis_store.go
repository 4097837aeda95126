package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dafibh/loansync/internal/config"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys in a shared Redis
const DefaultKeyPrefix = "loansync:session:"

// RedisStore keeps session tokens in Redis so several API instances can
// share logins
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, DefaultKeyPrefix), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

var _ domain.SessionStore = (*RedisStore)(nil)

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.Tokens, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Tokens{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("failed to get session: %w", err)
	}

	var tokens domain.Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return domain.Tokens{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return tokens, nil
}

// Save stores the pair. A ttl of zero keeps the key until deleted.
func (s *RedisStore) Save(ctx context.Context, id string, tokens domain.Tokens, ttl time.Duration) error {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(id), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
