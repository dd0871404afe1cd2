// Package pages resolves which promoted page an ad references. Resolution
// is deliberate about never calling the upstream platform: it works from
// the local asset store and the tenant registry only, so a page lookup can
// not burn rate-limit budget.
package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/promogate/promogate/internal/assets"
	"github.com/promogate/promogate/internal/tenant"
)

// ErrPageResolution is the sentinel wrapped by every ResolutionError.
var ErrPageResolution = errors.New("page resolution failed")

// ResolutionError reports that no page could be determined for an account.
// Hint carries the remediation step an operator should take.
type ResolutionError struct {
	TenantID  string
	AccountID string
	Hint      string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no page resolved for account %s (tenant %s): %s", e.AccountID, e.TenantID, e.Hint)
}

func (e *ResolutionError) Unwrap() error { return ErrPageResolution }

// Resolver picks the page id to attach to ad creatives.
type Resolver struct {
	Store  assets.Store
	Guard  tenant.AccountIsolationGuard
	Logger *slog.Logger
}

func NewResolver(store assets.Store, guard tenant.AccountIsolationGuard, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Store: store, Guard: guard, Logger: logger}
}

// Resolve returns the page id to use for accountID. An explicit id wins
// once the guard confirms the tenant owns it. Otherwise the persisted
// default is used, then the sole confirmed page for the account. When all
// three come up empty the caller gets a *ResolutionError.
func (r *Resolver) Resolve(ctx context.Context, tenantID, accountID, explicitPageID string) (string, error) {
	accountID = tenant.NormalizeAccountID(accountID)

	if explicitPageID != "" {
		pageID := tenant.NormalizePageID(explicitPageID)
		if err := r.Guard.AssertPageAllowed(ctx, tenantID, pageID); err != nil {
			return "", err
		}
		return pageID, nil
	}

	def, err := r.Store.DefaultPage(ctx, tenantID, accountID)
	if err != nil && !errors.Is(err, assets.ErrSchemaMissing) {
		return "", fmt.Errorf("pages: load default: %w", err)
	}
	if def != "" {
		return def, nil
	}

	confirmed, err := r.Store.PagesForAccount(ctx, tenantID, accountID)
	if err != nil && !errors.Is(err, assets.ErrSchemaMissing) {
		return "", fmt.Errorf("pages: list confirmed: %w", err)
	}
	if len(confirmed) == 1 {
		return confirmed[0].ID, nil
	}
	if len(confirmed) > 1 {
		r.Logger.Warn("multiple confirmed pages and no default",
			"tenant_id", tenantID, "account_id", accountID, "pages", len(confirmed))
		return "", &ResolutionError{
			TenantID:  tenantID,
			AccountID: accountID,
			Hint:      "several confirmed pages exist; set a default page or pass page_id explicitly",
		}
	}
	return "", &ResolutionError{
		TenantID:  tenantID,
		AccountID: accountID,
		Hint:      "no confirmed page on record; register a page for this account or pass page_id explicitly",
	}
}

// SetDefault persists the default page for an account after the guard
// confirms ownership of both sides.
func (r *Resolver) SetDefault(ctx context.Context, tenantID, accountID, pageID string) error {
	accountID = tenant.NormalizeAccountID(accountID)
	pageID = tenant.NormalizePageID(pageID)
	if err := r.Guard.AssertAccountAllowed(ctx, tenantID, accountID); err != nil {
		return err
	}
	if err := r.Guard.AssertPageAllowed(ctx, tenantID, pageID); err != nil {
		return err
	}
	return r.Store.SetDefaultPage(ctx, tenantID, accountID, pageID)
}
