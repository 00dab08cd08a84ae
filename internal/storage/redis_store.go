// internal/storage/redis_store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisSnapshotStore 将快照保存在单个 Redis 键中
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshotStore 连接 Redis 并确认可用
func NewRedisSnapshotStore(cfg RedisConfig) (*RedisSnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return NewRedisSnapshotStoreWithClient(client), nil
}

// NewRedisSnapshotStoreWithClient 使用已有客户端
func NewRedisSnapshotStoreWithClient(client *redis.Client) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, key: AutosaveKey}
}

// Load 读取快照
func (s *RedisSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}
	return data, nil
}

// Save 覆盖写入快照，不设置过期时间
func (s *RedisSnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("保存快照失败: %w", err)
	}
	return nil
}

// Delete 删除快照
func (s *RedisSnapshotStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("删除快照失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
