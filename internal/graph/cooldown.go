package graph

import (
	"sync"
	"time"
)

const (
	cooldownBase = 30 * time.Second
	cooldownMax  = 15 * time.Minute
)

type cooldownEntry struct {
	until time.Time
	hits  int
}

// Cooldown is a per-account circuit breaker. Each rate-limit hit doubles the
// penalty from the base up to the cap; a successful call clears the entry.
// Keys are normalized account ids. Expired entries are treated as absent.
type Cooldown struct {
	mu      sync.Mutex
	nowFn   func() time.Time
	base    time.Duration
	max     time.Duration
	entries map[string]cooldownEntry
}

func NewCooldown() *Cooldown {
	return &Cooldown{
		nowFn:   time.Now,
		base:    cooldownBase,
		max:     cooldownMax,
		entries: make(map[string]cooldownEntry),
	}
}

// WithNow overrides the clock. Tests only.
func (c *Cooldown) WithNow(now func() time.Time) *Cooldown {
	if now != nil {
		c.nowFn = now
	}
	return c
}

// Mark records a rate-limit hit and returns the penalty now in effect.
func (c *Cooldown) Mark(accountID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entries[accountID]
	entry.hits++
	penalty := c.base << (entry.hits - 1)
	if penalty > c.max || penalty <= 0 {
		penalty = c.max
	}
	entry.until = c.nowFn().Add(penalty)
	c.entries[accountID] = entry
	return penalty
}

// Remaining reports how long the account stays in cooldown; zero when it is
// not cooling down.
func (c *Cooldown) Remaining(accountID string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[accountID]
	if !ok {
		return 0
	}
	rest := entry.until.Sub(c.nowFn())
	if rest <= 0 {
		return 0
	}
	return rest
}

// Active reports whether the account is currently cooling down.
func (c *Cooldown) Active(accountID string) bool {
	return c.Remaining(accountID) > 0
}

// Hits returns the consecutive-hit counter for an account.
func (c *Cooldown) Hits(accountID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[accountID].hits
}

// Clear resets the account after a successful call.
func (c *Cooldown) Clear(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}
