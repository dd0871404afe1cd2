package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/promogate/promogate/internal/reqctx"
	"github.com/promogate/promogate/internal/tenant"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(string) (string, error) { return s.token, nil }

type allowAllGuard struct{}

func (allowAllGuard) AssertAccountAllowed(context.Context, string, string) error { return nil }
func (allowAllGuard) AssertPageAllowed(context.Context, string, string) error    { return nil }
func (allowAllGuard) InferTenantByAccount(context.Context, string) (string, error) {
	return "", nil
}
func (allowAllGuard) AllowedAccountIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

type denyAllGuard struct{ calls atomic.Int64 }

func (g *denyAllGuard) AssertAccountAllowed(_ context.Context, tenantID, accountID string) error {
	g.calls.Add(1)
	return &tenant.IsolationError{TenantID: tenantID, Resource: accountID}
}
func (g *denyAllGuard) AssertPageAllowed(context.Context, string, string) error { return nil }
func (g *denyAllGuard) InferTenantByAccount(context.Context, string) (string, error) {
	return "", nil
}
func (g *denyAllGuard) AllowedAccountIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

func newTestClient(t *testing.T, handler http.Handler, retry RetryConfig, guard tenant.AccountIsolationGuard) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var slept []time.Duration
	c := NewClient(srv.URL, srv.Client(), staticTokens{token: "raw-test-token"}, guard, retry, nil)
	c.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	c.Jitter = func() float64 { return 0 }
	return c, &slept
}

func TestDoRetriesOn429ThenSucceeds(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"id":"camp_1"}`))
	})
	retry := RetryConfig{Max: 2, Base: 100 * time.Millisecond, Cap: time.Second}
	c, slept := newTestClient(t, handler, retry, nil)
	var retries atomic.Int64
	c.OnRetry = func(string, int) { retries.Add(1) }

	resp, err := c.Do(context.Background(), reqctx.Context{TenantID: "tn_1"}, Request{Method: http.MethodGet, Path: "camp_1"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.Status)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("upstream hits=%d, want 2", got)
	}
	if len(*slept) != 1 || (*slept)[0] != 100*time.Millisecond {
		t.Fatalf("slept=%v, want exactly one base delay", *slept)
	}
	if got := retries.Load(); got != 1 {
		t.Fatalf("retry hook fired %d times, want 1", got)
	}
}

func TestDoExhaustsRetryBudgetOn500(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","code":1,"fbtrace_id":"tr_1"}}`))
	})
	retry := RetryConfig{Max: 1, Base: 10 * time.Millisecond, Cap: time.Second}
	c, _ := newTestClient(t, handler, retry, nil)

	_, err := c.Do(context.Background(), reqctx.Context{TenantID: "tn_1"}, Request{Method: http.MethodGet, Path: "camp_1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("upstream hits=%d, want exactly 2", got)
	}
	var api *APIError
	if !errors.As(err, &api) {
		t.Fatalf("error type=%T, want *APIError", err)
	}
	if api.Status != 500 || api.TraceID != "tr_1" || api.Attempts != 2 {
		t.Fatalf("unexpected APIError: %+v", api)
	}
	if !errors.Is(err, ErrRetryBudgetExhausted) {
		t.Fatalf("error does not wrap ErrRetryBudgetExhausted: %v", err)
	}
}

func TestDoDoesNotRetryNonTransient4xx(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad param","code":100,"error_subcode":33}}`))
	})
	retry := RetryConfig{Max: 3, Base: 10 * time.Millisecond, Cap: time.Second}
	c, slept := newTestClient(t, handler, retry, nil)

	_, err := c.Do(context.Background(), reqctx.Context{TenantID: "tn_1"}, Request{Method: http.MethodGet, Path: "camp_1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("upstream hits=%d, want 1", got)
	}
	if len(*slept) != 0 {
		t.Fatalf("slept=%v, want none", *slept)
	}
	var api *APIError
	if !errors.As(err, &api) || api.Code != 100 || api.Subcode != 33 {
		t.Fatalf("unexpected error: %v", err)
	}
	if errors.Is(err, ErrRetryBudgetExhausted) {
		t.Fatalf("immediate failure must not claim retry exhaustion")
	}
}

func TestDoIsolationCheckBlocksBeforeNetwork(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{}`))
	})
	guard := &denyAllGuard{}
	c, _ := newTestClient(t, handler, RetryConfig{Max: 2, Base: time.Millisecond, Cap: time.Second}, guard)

	rc := reqctx.Context{TenantID: "tn_1", AccountID: "act_999"}
	_, err := c.Do(context.Background(), rc, Request{Method: http.MethodPost, Path: "act_999/campaigns"})
	if !errors.Is(err, tenant.ErrIsolation) {
		t.Fatalf("err=%v, want isolation error", err)
	}
	if got := hits.Load(); got != 0 {
		t.Fatalf("upstream hits=%d, want 0 (no network I/O on denial)", got)
	}
	if got := guard.calls.Load(); got != 1 {
		t.Fatalf("guard calls=%d, want 1", got)
	}
}

func TestDoSendsBearerTokenAndRedactsNothingUpstream(t *testing.T) {
	var auth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})
	c, _ := newTestClient(t, handler, RetryConfig{}, allowAllGuard{})

	_, err := c.Do(context.Background(), reqctx.Context{TenantID: "tn_1", AccountID: "123"}, Request{Method: http.MethodGet, Path: "me"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if auth != "Bearer raw-test-token" {
		t.Fatalf("Authorization=%q", auth)
	}
}

func TestRetryDelayCapsAndJitters(t *testing.T) {
	c := &Client{Retry: RetryConfig{Base: time.Second, Cap: 4 * time.Second, Jitter: time.Second}}
	c.Jitter = func() float64 { return 0.5 }

	if got := c.retryDelay(0); got != time.Second+500*time.Millisecond {
		t.Fatalf("attempt0=%s", got)
	}
	if got := c.retryDelay(1); got != 2*time.Second+500*time.Millisecond {
		t.Fatalf("attempt1=%s", got)
	}
	// Exponential part caps at 4s.
	if got := c.retryDelay(5); got != 4*time.Second+500*time.Millisecond {
		t.Fatalf("attempt5=%s", got)
	}
}

func TestQueryHelpers(t *testing.T) {
	if got := JSONQueryValue([]string{"ACTIVE", "PAUSED"}); got != `["ACTIVE","PAUSED"]` {
		t.Fatalf("JSONQueryValue=%q", got)
	}
	if got := FieldsParam([]string{"id", "name", "status"}); got != "id,name,status" {
		t.Fatalf("FieldsParam=%q", got)
	}
}
