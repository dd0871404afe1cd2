package ads

import (
	"context"
	"errors"

	"github.com/promogate/promogate/internal/assets"
	"github.com/promogate/promogate/internal/reqctx"
)

type ListPagesInput struct {
	AccountID string `json:"account_id"`
}

type ListPagesResult struct {
	Pages         []assets.Page `json:"pages"`
	DefaultPageID string        `json:"default_page_id,omitempty"`
}

// ListPages lists the confirmed pages on record for an account. Page data
// is local state; no upstream call is made.
func (s *Service) ListPages(ctx context.Context, rc reqctx.Context, in ListPagesInput) (ListPagesResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return ListPagesResult{}, err
	}
	pages, err := s.store.PagesForAccount(ctx, rc.TenantID, rc.AccountID)
	if err != nil && !errors.Is(err, assets.ErrSchemaMissing) {
		return ListPagesResult{}, err
	}
	def, err := s.store.DefaultPage(ctx, rc.TenantID, rc.AccountID)
	if err != nil && !errors.Is(err, assets.ErrSchemaMissing) {
		return ListPagesResult{}, err
	}
	return ListPagesResult{Pages: pages, DefaultPageID: def}, nil
}

type SetDefaultPageInput struct {
	AccountID string `json:"account_id"`
	PageID    string `json:"page_id"`
}

func (s *Service) SetDefaultPage(ctx context.Context, rc reqctx.Context, in SetDefaultPageInput) error {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return err
	}
	return s.pages.SetDefault(ctx, rc.TenantID, rc.AccountID, in.PageID)
}

type GetComplianceSettingsInput struct {
	AccountID string `json:"account_id"`
}

type ComplianceSettingsResult struct {
	Beneficiary string `json:"beneficiary"`
	Payor       string `json:"payor"`
	Source      string `json:"source"`
}

// GetComplianceSettings returns the disclosure values that would be
// attached to regulated ads, computing and persisting them on first use.
func (s *Service) GetComplianceSettings(ctx context.Context, rc reqctx.Context, in GetComplianceSettingsInput) (ComplianceSettingsResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return ComplianceSettingsResult{}, err
	}
	cs, err := s.compliance.EnsureSettings(ctx, rc, rc.AccountID)
	if err != nil {
		return ComplianceSettingsResult{}, err
	}
	return ComplianceSettingsResult{
		Beneficiary: cs.Beneficiary,
		Payor:       cs.Payor,
		Source:      string(cs.Source),
	}, nil
}

type SetComplianceSettingsInput struct {
	AccountID   string `json:"account_id"`
	Beneficiary string `json:"beneficiary"`
	Payor       string `json:"payor"`
}

func (s *Service) SetComplianceSettings(ctx context.Context, rc reqctx.Context, in SetComplianceSettingsInput) (ComplianceSettingsResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return ComplianceSettingsResult{}, err
	}
	if in.Beneficiary == "" || in.Payor == "" {
		return ComplianceSettingsResult{}, errors.New("beneficiary and payor are required")
	}
	cs := assets.ComplianceSettings{
		Beneficiary: in.Beneficiary,
		Payor:       in.Payor,
		Source:      assets.SourceManual,
	}
	if err := s.compliance.Save(ctx, rc, rc.AccountID, cs); err != nil {
		return ComplianceSettingsResult{}, err
	}
	return ComplianceSettingsResult{
		Beneficiary: cs.Beneficiary,
		Payor:       cs.Payor,
		Source:      string(cs.Source),
	}, nil
}
