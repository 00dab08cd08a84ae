package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedisStore(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisSnapshotStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisSnapshotStoreLifecycle(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("空库应返回 ErrSnapshotNotFound: %v", err)
	}

	if err := store.Save(ctx, []byte(`{"scenes":[]}`)); err != nil {
		t.Fatalf("保存失败: %v", err)
	}
	if got, err := mr.Get(AutosaveKey); err != nil || got != `{"scenes":[]}` {
		t.Fatalf("快照应写入固定键名: %q %v", got, err)
	}
	if ttl := mr.TTL(AutosaveKey); ttl != 0 {
		t.Fatalf("快照不应设置过期时间: %s", ttl)
	}

	data, err := store.Load(ctx)
	if err != nil || string(data) != `{"scenes":[]}` {
		t.Fatalf("读取快照错误: %q %v", data, err)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("重复删除应成功: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatal("删除后应读取不到快照")
	}
}

func TestRedisSnapshotStoreConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := NewRedisSnapshotStore(RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("连接 Redis 失败: %v", err)
	}
	defer store.Close()
	if err := store.Save(context.Background(), []byte("x")); err != nil {
		t.Fatalf("保存失败: %v", err)
	}

	mr.SetError("ERR 服务不可用")
	if _, err := store.Load(context.Background()); err == nil || errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("服务端错误不应当作快照不存在: %v", err)
	}
}

func TestRedisSnapshotStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisSnapshotStore(RedisConfig{Addr: addr}); err == nil {
		t.Fatal("无法连接时应返回错误")
	}
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)
