package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New()
	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	if !ok || got.(string) != "v" {
		t.Fatalf("expected v, got %v (%v)", got, ok)
	}
}

func TestExpiry(t *testing.T) {
	c := New()
	c.Set("k", "v", -time.Second)

	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected expired entry to be absent")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected a deleted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatalf("expected b present")
	}

	c.Clear()
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected cache empty after clear")
	}
}

func TestPurgeExpired(t *testing.T) {
	c := New()
	c.Set("live", 1, time.Minute)
	c.Set("dead", 2, -time.Second)
	c.Set("gone", 3, -time.Second)

	if purged := c.PurgeExpired(); purged != 2 {
		t.Fatalf("expected 2 purged, got %d", purged)
	}
	if _, ok := c.Get("live"); !ok {
		t.Fatalf("expected live entry to survive purge")
	}
}
