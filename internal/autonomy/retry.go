// Package autonomy bounds the corrective retries an autonomous executor may
// apply during one multi-step run. Each run owns one StateMachine; the
// category attempt counts are the only state and die with the run.
package autonomy

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// FixCategory names an error class the executor knows how to correct.
type FixCategory string

const (
	FixMissingBid           FixCategory = "missing-bid"
	FixUnsetAudienceFlag    FixCategory = "unset-audience-automation-flag"
	FixMalformedCreativeURL FixCategory = "malformed-creative-url"
	FixLocaleMismatch       FixCategory = "locale-mismatch"
	FixMissingBudget        FixCategory = "missing-budget"
)

const defaultCap = 1

// defaultCaps holds per-category limits that differ from the default.
// Creative URL corrections get two tries because the first rewrite often
// fixes the scheme but not the host.
var defaultCaps = map[FixCategory]int{
	FixMalformedCreativeURL: 2,
}

// StateMachine tracks corrective attempts per category for one run.
type StateMachine struct {
	mu      sync.Mutex
	runID   string
	caps    map[FixCategory]int
	applied map[FixCategory]int
}

// NewStateMachine builds a run-scoped machine. overrides replaces the cap
// for the named categories; other categories keep their defaults.
func NewStateMachine(overrides map[FixCategory]int) *StateMachine {
	caps := make(map[FixCategory]int, len(defaultCaps)+len(overrides))
	for cat, n := range defaultCaps {
		caps[cat] = n
	}
	for cat, n := range overrides {
		caps[cat] = n
	}
	return &StateMachine{
		runID:   uuid.NewString(),
		caps:    caps,
		applied: make(map[FixCategory]int),
	}
}

// RunID identifies the execution run this machine belongs to.
func (m *StateMachine) RunID() string { return m.runID }

func (m *StateMachine) capFor(cat FixCategory) int {
	if n, ok := m.caps[cat]; ok {
		return n
	}
	return defaultCap
}

// CanRetry reports whether the category has allowance left.
func (m *StateMachine) CanRetry(cat FixCategory) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[cat] < m.capFor(cat)
}

// MarkApplied consumes one attempt for the category. It returns false and
// leaves the count untouched once the cap is reached.
func (m *StateMachine) MarkApplied(cat FixCategory) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applied[cat] >= m.capFor(cat) {
		return false
	}
	m.applied[cat]++
	return true
}

// WasApplied reports whether at least one attempt was consumed.
func (m *StateMachine) WasApplied(cat FixCategory) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[cat] > 0
}

// AppliedFixes lists the distinct categories attempted so far, sorted for
// stable output.
func (m *StateMachine) AppliedFixes() []FixCategory {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FixCategory, 0, len(m.applied))
	for cat := range m.applied {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalAttempts sums attempts across all categories.
func (m *StateMachine) TotalAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.applied {
		total += n
	}
	return total
}

// Reset restores the full allowance for every category.
func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = make(map[FixCategory]int)
}
