// Package graph executes governed HTTP calls against the upstream
// advertising platform: tenant isolation before any I/O, bearer token
// resolution, bounded retry with exponential backoff, rate-limit telemetry
// parsing, and the read cache / cooldown machinery around it.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/promogate/promogate/internal/redact"
	"github.com/promogate/promogate/internal/reqctx"
	"github.com/promogate/promogate/internal/tenant"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://graph.facebook.com/v23.0"

	tracerName = "github.com/promogate/promogate/internal/graph"
)

// RetryConfig bounds the internal retry loop for transient upstream
// failures (429 and 5xx).
type RetryConfig struct {
	// Max is the number of retries after the first attempt.
	Max int
	// Base is the first retry delay; each retry doubles it.
	Base time.Duration
	// Cap limits the exponential delay.
	Cap time.Duration
	// Jitter adds a uniform random delay in [0, Jitter).
	Jitter time.Duration
}

// Request describes one upstream call.
type Request struct {
	Method string
	// Path is relative to the API root, e.g. "act_123/campaigns".
	Path  string
	Query url.Values
	// Body is JSON-marshaled for writes.
	Body any
}

// Response is the upstream reply after a successful exchange.
type Response struct {
	Data   json.RawMessage
	Status int
	Header http.Header
	Usage  Usage
}

// Client mediates every outbound call. When a Guard is attached and the
// request context names an account, the isolation check runs before any
// network I/O; no request is ever sent for a disallowed account.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenProvider
	Guard      tenant.AccountIsolationGuard
	Retry      RetryConfig
	Logger     *slog.Logger

	// Sleep suspends between retries. Injectable for deterministic tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a uniform value in [0, 1). Injectable for tests.
	Jitter func() float64
	// OnUsage observes rate-limit telemetry per response.
	OnUsage func(accountID string, u Usage)
	// OnRetry observes each retry attempt.
	OnRetry func(path string, attempt int)

	tracer trace.Tracer
}

// NewClient builds a client with the given dependencies. httpClient may be
// pre-instrumented (otelhttp transport).
func NewClient(baseURL string, httpClient *http.Client, tokens TokenProvider, guard tenant.AccountIsolationGuard, retry RetryConfig, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retry.Base <= 0 {
		retry.Base = 500 * time.Millisecond
	}
	if retry.Cap <= 0 {
		retry.Cap = 16 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		Tokens:     tokens,
		Guard:      guard,
		Retry:      retry,
		Logger:     logger,
		Sleep:      sleepCtx,
		Jitter:     rand.Float64,
		tracer:     otel.Tracer(tracerName),
	}
}

// Do executes one governed call for the given request context.
func (c *Client) Do(ctx context.Context, rc reqctx.Context, req Request) (*Response, error) {
	if rc.AccountID != "" && c.Guard != nil {
		accountID := tenant.NormalizeAccountID(rc.AccountID)
		if err := c.Guard.AssertAccountAllowed(ctx, rc.TenantID, accountID); err != nil {
			return nil, err
		}
	}

	token, err := c.Tokens.Token(rc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "graph."+strings.ToLower(req.Method),
		trace.WithAttributes(
			attribute.String("graph.path", req.Path),
			attribute.String("tenant.id", rc.TenantID),
		))
	defer span.End()

	resp, err := c.doWithRetry(ctx, rc, req, token)
	if err != nil {
		span.RecordError(fmt.Errorf("%s", redact.Error(err)))
		span.SetStatus(codes.Error, "upstream call failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	return resp, nil
}

func (c *Client) doWithRetry(ctx context.Context, rc reqctx.Context, req Request, token string) (*Response, error) {
	var lastStatus int
	var lastBody []byte

	maxAttempts := c.Retry.Max + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.retryDelay(attempt-1)); err != nil {
				return nil, err
			}
			c.Logger.Debug("graph_retry",
				slog.String("path", req.Path),
				slog.String("tenant", rc.TenantID),
				slog.Int("attempt", attempt),
				slog.Int("last_status", lastStatus),
			)
			if c.OnRetry != nil {
				c.OnRetry(req.Path, attempt)
			}
		}

		status, header, body, err := c.exchange(ctx, req, token)
		if err != nil {
			// Transport-level failure: transient by nature, retried on the
			// same budget as 5xx.
			lastStatus = 0
			lastBody = nil
			if attempt == maxAttempts-1 {
				return nil, fmt.Errorf("upstream request failed after %d attempts: %s", maxAttempts, redact.Error(err))
			}
			continue
		}

		usage := ParseUsageHeaders(header)
		if c.OnUsage != nil {
			c.OnUsage(tenant.NormalizeAccountID(rc.AccountID), usage)
		}

		switch {
		case status >= 200 && status < 300:
			return &Response{Data: body, Status: status, Header: header, Usage: usage}, nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastStatus = status
			lastBody = body
			// Retry unless the budget is spent.
		default:
			// Non-transient failure: propagate immediately, never retried.
			return nil, newAPIError(status, body, attempt+1, false)
		}
	}

	return nil, newAPIError(lastStatus, lastBody, maxAttempts, true)
}

func (c *Client) exchange(ctx context.Context, req Request, token string) (int, http.Header, []byte, error) {
	u := c.BaseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, bodyReader)
	if err != nil {
		return 0, nil, nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

// retryDelay computes min(base << attempt, cap) plus uniform jitter.
func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.Retry.Base << attempt
	if delay > c.Retry.Cap || delay <= 0 {
		delay = c.Retry.Cap
	}
	if c.Retry.Jitter > 0 {
		jitter := c.Jitter
		if jitter == nil {
			jitter = rand.Float64
		}
		delay += time.Duration(jitter() * float64(c.Retry.Jitter))
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	fn := c.Sleep
	if fn == nil {
		fn = sleepCtx
	}
	return fn(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// JSONQueryValue serializes a query value the way the upstream expects
// arrays: JSON-encoded into a single parameter.
func JSONQueryValue(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// FieldsParam joins a field-selection list the way the upstream expects:
// comma-separated.
func FieldsParam(fields []string) string {
	return strings.Join(fields, ",")
}
