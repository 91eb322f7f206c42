package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "licensebot:session"
	}
	return &RedisSessionStore{
		client: client,
		prefix: prefix,
	}
}

// Save writes the session with a TTL matching its remaining lifetime, so
// Redis drops it at the same moment the cookie expires.
func (s *RedisSessionStore) Save(ctx context.Context, session Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.key(session.ID), payload, ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.Expired(time.Now().UTC()) {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSessionStore) key(id string) string {
	return fmt.Sprintf("%s:%s", s.prefix, id)
}
