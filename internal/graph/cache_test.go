package graph

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheKeyDeterministic(t *testing.T) {
	a := CacheKey("campaigns", "act_1", "ACTIVE")
	b := CacheKey("campaigns", "act_1", "ACTIVE")
	if a != b {
		t.Fatalf("CacheKey not deterministic: %q vs %q", a, b)
	}
	if a == CacheKey("campaigns", "act_1ACTIVE") {
		t.Fatalf("CacheKey must separate tuple elements")
	}
}

func TestCacheGetFreshAndStale(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache().WithNow(func() time.Time { return now })

	c.Set("k", "v1")
	if got, ok := c.Get("k", time.Minute); !ok || got != "v1" {
		t.Fatalf("fresh Get=%v ok=%v", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k", time.Minute); ok {
		t.Fatalf("expired entry returned by Get")
	}
	// Get evicted it, so the stale path misses too.
	if _, ok := c.GetStale("k"); ok {
		t.Fatalf("evicted entry returned by GetStale")
	}

	c.Set("k2", "v2")
	now = now.Add(time.Hour)
	if got, ok := c.GetStale("k2"); !ok || got != "v2" {
		t.Fatalf("GetStale=%v ok=%v, want stale hit", got, ok)
	}
}

func TestCacheSetPrunesOldEntries(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache().WithNow(func() time.Time { return now })

	for i := 0; i < cachePruneThreshold; i++ {
		c.Set(fmt.Sprintf("old_%d", i), i)
	}
	now = now.Add(cacheMaxAge + time.Minute)
	c.Set("fresh", "v")

	if got := c.Len(); got != 1 {
		t.Fatalf("Len=%d after sweep, want 1", got)
	}
	if _, ok := c.GetStale("fresh"); !ok {
		t.Fatalf("fresh entry swept")
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := NewCache()
	c.Set(CacheKey("campaigns", "act_1"), 1)
	c.Set(CacheKey("campaigns", "act_2"), 2)
	c.Set(CacheKey("adsets", "act_1"), 3)

	c.Invalidate(CacheKey("campaigns", "act_1"))
	if _, ok := c.GetStale(CacheKey("campaigns", "act_1")); ok {
		t.Fatalf("invalidated key still present")
	}
	if _, ok := c.GetStale(CacheKey("campaigns", "act_2")); !ok {
		t.Fatalf("unrelated key dropped")
	}
	if _, ok := c.GetStale(CacheKey("adsets", "act_1")); !ok {
		t.Fatalf("other prefix dropped")
	}
}

func TestCooldownDoublesAndCaps(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewCooldown().WithNow(func() time.Time { return now })

	if got := c.Mark("act_1"); got != cooldownBase {
		t.Fatalf("first Mark=%s, want %s", got, cooldownBase)
	}
	if got := c.Mark("act_1"); got != 2*cooldownBase {
		t.Fatalf("second Mark=%s, want %s", got, 2*cooldownBase)
	}
	for i := 0; i < 10; i++ {
		c.Mark("act_1")
	}
	if got := c.Remaining("act_1"); got != cooldownMax {
		t.Fatalf("Remaining=%s, want capped at %s", got, cooldownMax)
	}
	if got := c.Hits("act_1"); got != 12 {
		t.Fatalf("Hits=%d, want 12", got)
	}
}

func TestCooldownExpiresAndClears(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewCooldown().WithNow(func() time.Time { return now })

	c.Mark("act_1")
	if !c.Active("act_1") {
		t.Fatalf("expected active cooldown")
	}

	now = now.Add(cooldownBase + time.Second)
	if c.Active("act_1") {
		t.Fatalf("cooldown should implicitly expire")
	}

	c.Mark("act_2")
	c.Clear("act_2")
	if c.Active("act_2") || c.Hits("act_2") != 0 {
		t.Fatalf("Clear must reset entry entirely")
	}
}

func TestCooldownAccountsIndependent(t *testing.T) {
	c := NewCooldown()
	c.Mark("act_1")
	if c.Active("act_2") {
		t.Fatalf("cooldown leaked across accounts")
	}
}
