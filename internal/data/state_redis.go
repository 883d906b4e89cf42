package data

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"todo-backend/internal/auth"

	"github.com/redis/go-redis/v9"
)

// consumeScript 原子地把 attempt 挪到 used key，保留到原本的过期时间
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then return 0 end
local ttl = redis.call('PTTL', KEYS[1])
redis.call('DEL', KEYS[1])
if ttl > 0 then
	redis.call('SET', KEYS[2], v, 'PX', ttl)
end
return 1
`)

// redisStateBackend 所有副本共享的登录 state 存储，过期由 redis 处理
type redisStateBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStateBackend 创建 redis state 存储
func NewRedisStateBackend(client *redis.Client, keyPrefix string, ttl time.Duration) auth.StateBackend {
	return &redisStateBackend{
		client: client,
		prefix: keyPrefix + "state:",
		ttl:    ttl,
	}
}

func (b *redisStateBackend) Name() string { return "redis" }

func (b *redisStateBackend) key(k string) string {
	return b.prefix + k
}

func (b *redisStateBackend) usedKey(k string) string {
	return b.prefix + "used:" + k
}

// Save 写入 attempt，覆盖同一 session 之前的 attempt
func (b *redisStateBackend) Save(ctx context.Context, key string, a auth.Attempt) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := b.client.Set(ctx, b.key(key), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// Get 读取 attempt
func (b *redisStateBackend) Get(ctx context.Context, key string) (auth.Attempt, bool, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return auth.Attempt{}, false, nil
	}
	if err != nil {
		return auth.Attempt{}, false, fmt.Errorf("failed to get state: %w", err)
	}

	var a auth.Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return auth.Attempt{}, false, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return a, true, nil
}

// Delete 脚本的返回值保证并发回调中只有一个能删除成功
func (b *redisStateBackend) Delete(ctx context.Context, key string) (bool, error) {
	n, err := consumeScript.Run(ctx, b.client, []string{b.key(key), b.usedKey(key)}).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete state: %w", err)
	}
	return n > 0, nil
}

// Consumed 检查 used key 中是否是同一个 state
func (b *redisStateBackend) Consumed(ctx context.Context, key, state string) (bool, error) {
	data, err := b.client.Get(ctx, b.usedKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get consumed state: %w", err)
	}

	var a auth.Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return false, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return a.State != "" && subtle.ConstantTimeCompare([]byte(a.State), []byte(state)) == 1, nil
}

// Sweep redis 自动过期，无需清理
func (b *redisStateBackend) Sweep(context.Context, time.Time, time.Duration) (int, error) {
	return 0, nil
}
