// Package assets persists the tenant-owned platform assets the gateway
// consults before mutations: confirmed pages per ad account, the default
// page, and regulatory-disclosure (DSA) settings.
package assets

import (
	"context"
	"errors"
	"time"
)

// ErrSchemaMissing marks a degraded deployment whose asset schema is not
// provisioned. Callers that can degrade (the compliance read path) treat it
// as best-effort; everything else surfaces it.
var ErrSchemaMissing = errors.New("asset schema missing")

// Page is a tenant-confirmed platform page mapped to an ad account.
type Page struct {
	ID        string
	Name      string
	AccountID string
	Confirmed bool
}

// ComplianceSource records where disclosure values came from.
type ComplianceSource string

const (
	SourceManual         ComplianceSource = "MANUAL"
	SourceRecommendation ComplianceSource = "RECOMMENDATION"
)

// ComplianceSettings are the regulatory disclosure fields required when
// advertising targets a regulated region.
type ComplianceSettings struct {
	Beneficiary string
	Payor       string
	Source      ComplianceSource
	UpdatedAt   time.Time
}

// Complete reports whether both disclosure fields are present.
func (s ComplianceSettings) Complete() bool {
	return s.Beneficiary != "" && s.Payor != ""
}

// Store is the tenant-asset lookup interface the gateway depends on.
// Account and page ids are stored normalized.
type Store interface {
	// PagesForAccount lists the tenant's confirmed pages mapped to an
	// account.
	PagesForAccount(ctx context.Context, tenantID, accountID string) ([]Page, error)
	// UpsertPage records or updates a page mapping.
	UpsertPage(ctx context.Context, tenantID string, page Page) error
	// DefaultPage returns the persisted default page id for an account;
	// empty when unset.
	DefaultPage(ctx context.Context, tenantID, accountID string) (string, error)
	// SetDefaultPage persists the default page for an account.
	SetDefaultPage(ctx context.Context, tenantID, accountID, pageID string) error
	// Compliance returns the persisted disclosure settings; ok is false
	// when none are stored.
	Compliance(ctx context.Context, tenantID, accountID string) (ComplianceSettings, bool, error)
	// SaveCompliance persists disclosure settings.
	SaveCompliance(ctx context.Context, tenantID, accountID string, s ComplianceSettings) error
}
