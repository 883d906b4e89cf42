package data

import (
	"context"
	"fmt"

	"todo-backend/internal/conf"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 创建 redis 客户端并检查连通性
func NewRedisClient(ctx context.Context, cfg conf.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
