package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Cache 字节缓存（需求名称下拉等只读数据）
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New 配置了 Redis 地址时使用 Redis，连接失败回退到内存缓存
func New(redisAddr, prefix string) Cache {
	if redisAddr == "" {
		return NewMemory()
	}
	rc, err := Dial(redisAddr, prefix)
	if err != nil {
		log.Warn().Err(err).Str("addr", redisAddr).Msg("Redis 不可用，使用内存缓存")
		return NewMemory()
	}
	return rc
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory 进程内缓存
type Memory struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

// NewMemory 创建内存缓存
func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry), now: time.Now}
}

// Get 读取缓存，过期视为未命中
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set 写入缓存，ttl <= 0 表示不过期
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: make([]byte, len(value))}
	copy(e.value, value)
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = e
	m.mu.Unlock()
	return nil
}

// Delete 删除缓存
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Close 内存缓存无需释放
func (m *Memory) Close() error { return nil }

// Redis 基于 Redis 的缓存
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis 用已有客户端创建缓存
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Dial 连接 Redis
func Dial(addr, prefix string) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedis(rdb, prefix), nil
}

func (r *Redis) key(k string) string { return r.prefix + k }

// Get 读取缓存
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set 写入缓存
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (r *Redis) Close() error {
	return r.client.Close()
}
