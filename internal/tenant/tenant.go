// Package tenant enforces the boundary between isolated customers: which
// external ad accounts and pages a tenant may touch, and which tenant an
// account id belongs to. Every account id is normalized to the canonical
// act_-prefixed form before comparison or storage; raw ids never cross this
// package's interfaces.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrIsolation is the sentinel every isolation failure wraps.
var ErrIsolation = errors.New("tenant isolation violation")

// ErrAmbiguousAccount marks an account id owned by more than one tenant;
// callers must supply an explicit tenant id in that case.
var ErrAmbiguousAccount = errors.New("account id maps to multiple tenants")

// IsolationError reports an authorization failure. It is raised before any
// network I/O and is never retried.
type IsolationError struct {
	TenantID string
	Resource string // normalized account or page id
	Reason   string

	base error
}

func (e *IsolationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason != "" {
		return fmt.Sprintf("tenant %s: access to %s denied: %s", e.TenantID, e.Resource, e.Reason)
	}
	return fmt.Sprintf("tenant %s: access to %s denied", e.TenantID, e.Resource)
}

func (e *IsolationError) Unwrap() []error {
	if e != nil && e.base != nil {
		return []error{ErrIsolation, e.base}
	}
	return []error{ErrIsolation}
}

// NormalizeAccountID returns the canonical act_-prefixed form of an ad
// account id. Empty input stays empty.
func NormalizeAccountID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "act_") {
		return id
	}
	return "act_" + id
}

// NormalizePageID trims a page id. Pages carry no platform prefix.
func NormalizePageID(id string) string {
	return strings.TrimSpace(id)
}

// AccountIsolationGuard is the single authorization interface both registry
// backends implement. Which backend runs is deployment configuration.
type AccountIsolationGuard interface {
	// AssertAccountAllowed fails with an *IsolationError unless tenantID
	// owns accountID.
	AssertAccountAllowed(ctx context.Context, tenantID, accountID string) error
	// AssertPageAllowed fails with an *IsolationError unless tenantID owns
	// pageID.
	AssertPageAllowed(ctx context.Context, tenantID, pageID string) error
	// InferTenantByAccount returns the unique tenant owning accountID.
	// More than one owner is an *IsolationError wrapping
	// ErrAmbiguousAccount. Zero owners returns ("", nil): unresolved, not
	// authorization granted.
	InferTenantByAccount(ctx context.Context, accountID string) (string, error)
	// AllowedAccountIDs lists the normalized account ids tenantID owns.
	AllowedAccountIDs(ctx context.Context, tenantID string) ([]string, error)
}

func denied(tenantID, resource, reason string) error {
	return &IsolationError{TenantID: tenantID, Resource: resource, Reason: reason}
}

func ambiguous(accountID string) error {
	return &IsolationError{
		Resource: accountID,
		Reason:   ErrAmbiguousAccount.Error() + "; pass an explicit tenant id",
		base:     ErrAmbiguousAccount,
	}
}
