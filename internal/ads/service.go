// Package ads is the operation facade: every named operation an external
// caller may invoke lives here. Each one runs the same pipeline: resolve
// the request context, authorize against the tenant registry, evaluate
// policy for mutations, admit through the per-account queue, then execute
// via the governed upstream client. Reads go through the cache and serve
// stale copies while an account is cooling down from rate limits.
package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/promogate/promogate/internal/assets"
	"github.com/promogate/promogate/internal/compliance"
	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/pages"
	"github.com/promogate/promogate/internal/policy"
	"github.com/promogate/promogate/internal/redact"
	"github.com/promogate/promogate/internal/reqctx"
	"github.com/promogate/promogate/internal/tenant"
)

// ErrTenantUnresolved means no tenant id was supplied and none could be
// inferred from the account id.
var ErrTenantUnresolved = errors.New("tenant could not be inferred; supply an explicit tenant id")

const defaultCacheTTL = 60 * time.Second

// Deps carries the facade's collaborators.
type Deps struct {
	Graph      *graph.Client
	Guard      tenant.AccountIsolationGuard
	Policy     *policy.Engine
	Queue      *graph.AccountQueue
	Cache      *graph.Cache
	Cooldown   *graph.Cooldown
	Pages      *pages.Resolver
	Compliance *compliance.Service
	Store      assets.Store
	Logger     *slog.Logger
	Counters   *Counters
	CacheTTL   time.Duration
}

type Service struct {
	graph      *graph.Client
	guard      tenant.AccountIsolationGuard
	policy     *policy.Engine
	queue      *graph.AccountQueue
	cache      *graph.Cache
	cooldown   *graph.Cooldown
	pages      *pages.Resolver
	compliance *compliance.Service
	store      assets.Store
	logger     *slog.Logger
	counters   *Counters
	cacheTTL   time.Duration
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Counters == nil {
		d.Counters = NewCounters()
	}
	if d.CacheTTL <= 0 {
		d.CacheTTL = defaultCacheTTL
	}
	return &Service{
		graph:      d.Graph,
		guard:      d.Guard,
		policy:     d.Policy,
		queue:      d.Queue,
		cache:      d.Cache,
		cooldown:   d.Cooldown,
		pages:      d.Pages,
		compliance: d.Compliance,
		store:      d.Store,
		logger:     d.Logger,
		counters:   d.Counters,
		cacheTTL:   d.CacheTTL,
	}
}

// Counters exposes the facade's activity counters.
func (s *Service) Counters() *Counters { return s.counters }

// resolve fills in and authorizes the request context for an account-scoped
// operation. An empty tenant id is inferred from the account when the
// mapping is unambiguous.
func (s *Service) resolve(ctx context.Context, rc reqctx.Context, accountID string) (reqctx.Context, error) {
	s.counters.requestsTotal.Add(1)
	rc.AccountID = tenant.NormalizeAccountID(accountID)
	if rc.AccountID == "" {
		return rc, errors.New("account id is required")
	}
	if rc.TenantID == "" {
		inferred, err := s.guard.InferTenantByAccount(ctx, rc.AccountID)
		if err != nil {
			s.counters.isolationDenialsTotal.Add(1)
			return rc, err
		}
		if inferred == "" {
			return rc, ErrTenantUnresolved
		}
		rc.TenantID = inferred
	}
	if err := s.guard.AssertAccountAllowed(ctx, rc.TenantID, rc.AccountID); err != nil {
		s.counters.isolationDenialsTotal.Add(1)
		return rc, err
	}
	return rc, nil
}

// cachedRead serves a read through the cache. A fresh entry returns
// immediately. During an account cooldown a stale copy is preferred over
// hitting the upstream again. A live call that fails with a rate-limit
// signature marks the cooldown and falls back to the stale copy when one
// exists. The bool result reports whether the data is stale.
func (s *Service) cachedRead(ctx context.Context, rc reqctx.Context, key string, req graph.Request) (json.RawMessage, bool, error) {
	if s.cooldown.Active(rc.AccountID) {
		if v, ok := s.cache.GetStale(key); ok {
			s.counters.staleServesTotal.Add(1)
			return v.(json.RawMessage), true, nil
		}
		// No copy to serve: the call proceeds and takes its chances.
	}
	// Snapshot any old copy before the freshness check evicts it; a
	// rate-limited live call below falls back to it.
	staleCopy, hasStale := s.cache.GetStale(key)
	if v, ok := s.cache.Get(key, s.cacheTTL); ok {
		return v.(json.RawMessage), false, nil
	}

	var resp *graph.Response
	err := s.queue.WithSlot(ctx, rc.AccountID, func() error {
		var callErr error
		resp, callErr = s.graph.Do(ctx, rc, req)
		return callErr
	})
	if err != nil {
		if graph.IsRateLimitMessage(err) {
			penalty := s.cooldown.Mark(rc.AccountID)
			s.counters.rateLimitHitsTotal.Add(1)
			s.counters.cooldownActivationsTotal.Add(1)
			s.logger.Warn("account rate limited, cooling down",
				"tenant_id", rc.TenantID, "account_id", rc.AccountID,
				"penalty", penalty.String(), "error", redact.Error(err))
			if hasStale {
				// Put the copy back so reads during the cooldown keep
				// serving it.
				s.cache.Set(key, staleCopy)
				s.counters.staleServesTotal.Add(1)
				return staleCopy.(json.RawMessage), true, nil
			}
		}
		return nil, false, err
	}
	s.cooldown.Clear(rc.AccountID)
	s.cache.Set(key, resp.Data)
	return resp.Data, false, nil
}

// mutate runs the mutation pipeline: policy, queue, upstream call, cache
// invalidation. The returned evaluation carries advisory warnings.
func (s *Service) mutate(ctx context.Context, rc reqctx.Context, in policy.MutationInput, req graph.Request, invalidate ...string) (json.RawMessage, policy.Evaluation, error) {
	eval, err := s.policy.EvaluateMutation(in)
	if err != nil {
		s.counters.policyRejectionsTotal.Add(1)
		return nil, policy.Evaluation{}, err
	}
	if len(eval.Warnings) > 0 {
		s.counters.policyWarningsTotal.Add(int64(len(eval.Warnings)))
		s.logger.Info("policy warnings on mutation",
			"tenant_id", rc.TenantID, "account_id", rc.AccountID,
			"operation", in.Operation, "warnings", eval.Warnings)
	}

	var resp *graph.Response
	err = s.queue.WithSlot(ctx, rc.AccountID, func() error {
		var callErr error
		resp, callErr = s.graph.Do(ctx, rc, req)
		return callErr
	})
	if err != nil {
		if graph.IsRateLimitMessage(err) {
			s.cooldown.Mark(rc.AccountID)
			s.counters.rateLimitHitsTotal.Add(1)
			s.counters.cooldownActivationsTotal.Add(1)
		}
		return nil, eval, err
	}
	s.counters.mutationsTotal.Add(1)
	s.cooldown.Clear(rc.AccountID)
	for _, prefix := range invalidate {
		s.cache.Invalidate(prefix)
	}
	return resp.Data, eval, nil
}

// fetchOne performs an uncached single-object read inside the account
// queue. Used when a mutation needs the current upstream state.
func (s *Service) fetchOne(ctx context.Context, rc reqctx.Context, req graph.Request) (json.RawMessage, error) {
	var resp *graph.Response
	err := s.queue.WithSlot(ctx, rc.AccountID, func() error {
		var callErr error
		resp, callErr = s.graph.Do(ctx, rc, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

type createResult struct {
	ID string `json:"id"`
}

func decodeCreateResult(raw json.RawMessage) (string, error) {
	var r createResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("decode create result: %w", err)
	}
	if r.ID == "" {
		return "", errors.New("upstream returned no id for created resource")
	}
	return r.ID, nil
}
