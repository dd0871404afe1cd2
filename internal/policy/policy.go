// Package policy governs mutations before they reach the upstream platform:
// volume caps, budget rules and advisory warnings. Evaluations are computed
// fresh for every mutation and never persisted.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Enforcement selects how warnings are handled.
type Enforcement string

const (
	// EnforceWarn surfaces warnings to the caller without blocking.
	EnforceWarn Enforcement = "warn"
	// EnforceBlock converts any non-empty warning set into a violation.
	EnforceBlock Enforcement = "block"
)

// Machine-readable reason codes.
const (
	ReasonMutationRateLimited = "mutation_rate_limited"
	ReasonBudgetRequired      = "budget_required"
	ReasonBudgetIncreaseCap   = "budget_increase_exceeds_cap"
	ReasonActivatingPaused    = "activating_paused"
	ReasonBudgetIncrease      = "budget_increase"
	ReasonBroadTargeting      = "broad_targeting"
	ReasonBulkDuplication     = "bulk_duplication_deep_copy"
)

// ErrViolation is the sentinel every policy rejection wraps.
var ErrViolation = errors.New("policy violation")

// ViolationError blocks a mutation. Never retried.
type ViolationError struct {
	Reasons []string
	Message string
}

func (e *ViolationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ViolationError) Unwrap() error { return ErrViolation }

func violation(reason, format string, args ...any) error {
	return &ViolationError{
		Reasons: []string{reason},
		Message: fmt.Sprintf(format, args...),
	}
}

// Budget carries the monetary fields of a mutation in the platform's
// smallest currency unit. Nil means "not supplied".
type Budget struct {
	Daily    *int64
	Lifetime *int64
}

// Targeting summarizes the audience of an ad-set mutation for breadth
// checks.
type Targeting struct {
	AgeMin int
	AgeMax int
	// Narrowing signals: interests or custom audiences attached.
	HasInterests       bool
	HasCustomAudiences bool
}

// MutationInput describes one mutation for evaluation.
type MutationInput struct {
	TenantID  string
	Operation string

	// BudgetMandatory marks operations that must carry an explicit budget
	// (campaign and ad-set creation).
	BudgetMandatory bool
	Current         Budget
	Next            Budget

	// ActivatingPaused is set when the mutation flips a paused resource to
	// active.
	ActivatingPaused bool
	Targeting        *Targeting

	// DeepCopyDuplication marks bulk duplication with the deep-copy flag.
	DeepCopyDuplication bool
}

// Evaluation is the advisory outcome of a permitted mutation.
type Evaluation struct {
	Warnings         []string
	Reasons          []string
	RequiresApproval bool
}

// Config tunes the engine.
type Config struct {
	// HourlyMutationCap is the per-tenant mutation budget over a trailing
	// hour.
	HourlyMutationCap int
	// MaxBudgetIncreasePct is the hard cap on budget growth per mutation.
	MaxBudgetIncreasePct float64
	// BroadAgeSpanYears flags targeting whose age span is at least this
	// wide and carries no narrowing signal.
	BroadAgeSpanYears int
	Mode              Enforcement
}

// DefaultConfig mirrors production defaults.
func DefaultConfig() Config {
	return Config{
		HourlyMutationCap:    30,
		MaxBudgetIncreasePct: 25,
		BroadAgeSpanYears:    40,
		Mode:                 EnforceWarn,
	}
}

// Engine evaluates mutations. The sliding-window counter is guarded by a
// mutex; check and record happen under one critical section.
type Engine struct {
	cfg   Config
	nowFn func() time.Time

	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.HourlyMutationCap <= 0 {
		cfg.HourlyMutationCap = DefaultConfig().HourlyMutationCap
	}
	if cfg.MaxBudgetIncreasePct <= 0 {
		cfg.MaxBudgetIncreasePct = DefaultConfig().MaxBudgetIncreasePct
	}
	if cfg.BroadAgeSpanYears <= 0 {
		cfg.BroadAgeSpanYears = DefaultConfig().BroadAgeSpanYears
	}
	if cfg.Mode == "" {
		cfg.Mode = EnforceWarn
	}
	return &Engine{
		cfg:     cfg,
		nowFn:   time.Now,
		windows: make(map[string][]time.Time),
	}
}

// WithNow overrides the clock. Tests only.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	if now != nil {
		e.nowFn = now
	}
	return e
}

// EvaluateMutation runs the ordered checks. Hard violations return a
// *ViolationError; otherwise the advisory evaluation is returned, subject to
// the enforcement mode.
func (e *Engine) EvaluateMutation(in MutationInput) (Evaluation, error) {
	if err := e.checkMutationVolume(in.TenantID); err != nil {
		return Evaluation{}, err
	}

	if in.BudgetMandatory && in.Next.Daily == nil && in.Next.Lifetime == nil {
		return Evaluation{}, violation(ReasonBudgetRequired,
			"operation %s requires an explicit daily_budget or lifetime_budget", in.Operation)
	}

	if pct, ok := maxIncreasePct(in.Current, in.Next); ok && pct > e.cfg.MaxBudgetIncreasePct {
		return Evaluation{}, violation(ReasonBudgetIncreaseCap,
			"budget increase of %.0f%% exceeds max allowed %.0f%%", pct, e.cfg.MaxBudgetIncreasePct)
	}

	eval := e.collectWarnings(in)
	if e.cfg.Mode == EnforceBlock && len(eval.Warnings) > 0 {
		return Evaluation{}, &ViolationError{
			Reasons: eval.Reasons,
			Message: "blocked by policy: " + strings.Join(eval.Warnings, "; "),
		}
	}
	return eval, nil
}

// checkMutationVolume enforces the trailing-hour cap and records the
// mutation timestamp atomically.
func (e *Engine) checkMutationVolume(tenantID string) error {
	now := e.nowFn()
	horizon := now.Add(-time.Hour)

	e.mu.Lock()
	defer e.mu.Unlock()

	window := e.windows[tenantID]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(horizon) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= e.cfg.HourlyMutationCap {
		e.windows[tenantID] = kept
		return violation(ReasonMutationRateLimited,
			"tenant %s exceeded mutation limit of %d per hour", tenantID, e.cfg.HourlyMutationCap)
	}
	e.windows[tenantID] = append(kept, now)
	return nil
}

func (e *Engine) collectWarnings(in MutationInput) Evaluation {
	var eval Evaluation
	warn := func(reason, format string, args ...any) {
		eval.Reasons = append(eval.Reasons, reason)
		eval.Warnings = append(eval.Warnings, fmt.Sprintf(format, args...))
	}

	if in.ActivatingPaused {
		warn(ReasonActivatingPaused,
			"this mutation activates a paused resource; it will start spending")
	}
	if pct, ok := maxIncreasePct(in.Current, in.Next); ok {
		warn(ReasonBudgetIncrease, "budget increases by %.0f%%", pct)
	}
	if t := in.Targeting; t != nil {
		span := t.AgeMax - t.AgeMin
		if span >= e.cfg.BroadAgeSpanYears && !t.HasInterests && !t.HasCustomAudiences {
			warn(ReasonBroadTargeting,
				"targeting spans %d years with no interests or custom audiences; audience may be very broad", span)
		}
	}
	if in.DeepCopyDuplication {
		warn(ReasonBulkDuplication,
			"deep-copy duplication clones nested ad sets and ads; review the copies before activation")
		eval.RequiresApproval = true
	}
	return eval
}

// maxIncreasePct computes the larger percentage increase across the daily
// and lifetime budgets. Only defined when both sides exist, the current
// value is positive and the next value is larger.
func maxIncreasePct(current, next Budget) (float64, bool) {
	best, found := 0.0, false
	consider := func(cur, nxt *int64) {
		if cur == nil || nxt == nil || *cur <= 0 || *nxt <= *cur {
			return
		}
		pct := float64(*nxt-*cur) / float64(*cur) * 100
		if !found || pct > best {
			best, found = pct, true
		}
	}
	consider(current.Daily, next.Daily)
	consider(current.Lifetime, next.Lifetime)
	return best, found
}
