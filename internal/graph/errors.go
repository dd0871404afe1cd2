package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/promogate/promogate/internal/redact"
)

// ErrRetryBudgetExhausted wraps every APIError surfaced after the internal
// retry budget ran out on a transient status.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// upstreamEnvelope is the platform's error body shape.
type upstreamEnvelope struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// APIError is an upstream failure, surfaced either immediately (non-transient
// status) or after the retry budget is exhausted. It preserves the upstream
// code/subcode/trace id for operator diagnosis; the message is redacted.
type APIError struct {
	Status    int
	Code      int
	Subcode   int
	TraceID   string
	Type      string
	Message   string
	Attempts  int
	exhausted bool
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graph api error: status %d", e.Status)
	if e.Code != 0 {
		fmt.Fprintf(&b, ", code %d", e.Code)
	}
	if e.Subcode != 0 {
		fmt.Fprintf(&b, ", subcode %d", e.Subcode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(redact.String(e.Message))
	}
	if e.TraceID != "" {
		fmt.Fprintf(&b, " (trace %s)", e.TraceID)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	if e != nil && e.exhausted {
		return ErrRetryBudgetExhausted
	}
	return nil
}

// newAPIError parses the upstream error envelope out of a response body.
// A body that is not the documented envelope still yields a usable error.
func newAPIError(status int, body []byte, attempts int, exhausted bool) *APIError {
	e := &APIError{Status: status, Attempts: attempts, exhausted: exhausted}
	var env upstreamEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		e.Code = env.Error.Code
		e.Subcode = env.Error.Subcode
		e.TraceID = env.Error.FBTraceID
		e.Type = env.Error.Type
		e.Message = env.Error.Message
	}
	if e.Message == "" && len(body) > 0 {
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		e.Message = msg
	}
	return e
}

// Payment-method error family: the upstream rejects campaign activation until
// the account has a funding source.
const (
	codePaymentMethodSubcode = 2446260
	codePaymentMethodLegacy  = 1359188
)

// PaymentMethodRequiredError is actionable: the operator must add a funding
// source on the ad account before the mutation can succeed.
type PaymentMethodRequiredError struct {
	AccountID string
	Cause     *APIError
}

func (e *PaymentMethodRequiredError) Error() string {
	return fmt.Sprintf("account %s has no valid payment method; add a funding source in the platform's billing settings and retry", e.AccountID)
}

func (e *PaymentMethodRequiredError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// IsPaymentMethodError recognizes the upstream's payment-precondition error
// family by code, subcode and phrase.
func IsPaymentMethodError(err error) bool {
	var api *APIError
	if !errors.As(err, &api) {
		return false
	}
	if api.Subcode == codePaymentMethodSubcode || api.Code == codePaymentMethodLegacy {
		return true
	}
	msg := strings.ToLower(api.Message)
	return strings.Contains(msg, "payment method") || strings.Contains(msg, "funding source")
}
