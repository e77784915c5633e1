package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New[int](time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("未写入的键不应命中")
	}

	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v != 42 {
		t.Fatalf("期望命中 42, 实际 %d ok=%v", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("期望 1 条缓存, 实际 %d", c.Len())
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New[string](10 * time.Millisecond)
	c.Set("k", "v")

	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("超过 TTL 的键不应命中")
	}
	// expired entry is dropped on read
	if c.Len() != 0 {
		t.Fatalf("过期键应在读取时删除, 实际仍有 %d 条", c.Len())
	}
}

func TestCacheDisabled(t *testing.T) {
	c := New[int](0)
	c.Set("k", 1)
	if _, ok := c.Get("k"); ok {
		t.Fatal("TTL 为 0 时缓存应始终 miss")
	}
}
