package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	if _, ok, _ := m.Get(ctx, "options"); ok {
		t.Fatal("empty cache should miss")
	}
	if err := m.Set(ctx, "options", []byte(`[1]`), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := m.Get(ctx, "options")
	if err != nil || !ok || string(got) != `[1]` {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "options"); ok {
		t.Error("expired entry should miss")
	}

	_ = m.Set(ctx, "forever", []byte("x"), 0)
	now = now.Add(24 * time.Hour)
	if _, ok, _ := m.Get(ctx, "forever"); !ok {
		t.Error("entry without ttl should not expire")
	}
	_ = m.Delete(ctx, "forever")
	if _, ok, _ := m.Get(ctx, "forever"); ok {
		t.Error("deleted entry should miss")
	}
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedis(db, "capacity:")

	t.Run("命中", func(t *testing.T) {
		mock.ExpectGet("capacity:options").SetVal(`[{"bcId":1}]`)
		val, ok, err := c.Get(ctx, "options")
		if err != nil || !ok || string(val) != `[{"bcId":1}]` {
			t.Fatalf("Get = %q, %v, %v", val, ok, err)
		}
	})

	t.Run("未命中", func(t *testing.T) {
		mock.ExpectGet("capacity:missing").RedisNil()
		_, ok, err := c.Get(ctx, "missing")
		if err != nil || ok {
			t.Fatalf("Get = %v, %v, want miss without error", ok, err)
		}
	})

	t.Run("错误", func(t *testing.T) {
		mock.ExpectGet("capacity:broken").SetErr(errors.New("connection refused"))
		if _, _, err := c.Get(ctx, "broken"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("写入和删除", func(t *testing.T) {
		mock.ExpectSet("capacity:options", []byte("v"), 5*time.Minute).SetVal("OK")
		if err := c.Set(ctx, "options", []byte("v"), 5*time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		mock.ExpectDel("capacity:options").SetVal(1)
		if err := c.Delete(ctx, "options"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Redis expectations not met: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, _, err := c.Get(ctx, "options"); err == nil {
		t.Error("closed client should fail")
	}
}

func TestNewWithoutRedis(t *testing.T) {
	if _, ok := New("", "p:").(*Memory); !ok {
		t.Error("empty address should select the memory cache")
	}
	if err := NewMemory().Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
