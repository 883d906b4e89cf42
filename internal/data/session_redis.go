package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"todo-backend/internal/session"

	"github.com/redis/go-redis/v9"
)

// redisSessionStore redis 实现的 session 存储，所有副本共享；过期交给 redis TTL
type redisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisSessionStore 创建 redis session 存储
func NewRedisSessionStore(client *redis.Client, keyPrefix string) session.Store {
	return &redisSessionStore{
		client: client,
		prefix: keyPrefix + "sess:",
		now:    time.Now,
	}
}

func (s *redisSessionStore) key(id string) string {
	return s.prefix + id
}

// Get 读取 session
func (s *redisSessionStore) Get(ctx context.Context, id string) (*session.Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

// Save 写入 session，TTL 为剩余有效期
func (s *redisSessionStore) Save(ctx context.Context, rec *session.Record) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, rec.ID)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete 删除 session
func (s *redisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
