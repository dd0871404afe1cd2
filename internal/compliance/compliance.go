// Package compliance fills in the regulatory disclosure fields (beneficiary
// and payor) that the upstream platform requires for ads targeting regulated
// regions. Values come from persisted settings, then from the platform's own
// recommendation endpoint, then from the tenant's display name.
package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/promogate/promogate/internal/assets"
	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/redact"
	"github.com/promogate/promogate/internal/reqctx"
	"github.com/promogate/promogate/internal/tenant"
)

// ErrCompliance is the sentinel wrapped by every Error.
var ErrCompliance = errors.New("compliance settings unavailable")

// Error reports that disclosure values could not be determined for an
// account. Hint carries the remediation step.
type Error struct {
	TenantID  string
	AccountID string
	Hint      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("no disclosure settings for account %s (tenant %s): %s", e.AccountID, e.TenantID, e.Hint)
}

func (e *Error) Unwrap() error { return ErrCompliance }

// regulatedRegions is the default set of country codes whose targeting
// triggers mandatory disclosure. EU member states plus the EEA three.
var regulatedRegions = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {}, "DK": {},
	"EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {}, "HU": {}, "IE": {},
	"IT": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {}, "NL": {}, "PL": {},
	"PT": {}, "RO": {}, "SK": {}, "SI": {}, "ES": {}, "SE": {},
	"IS": {}, "LI": {}, "NO": {},
}

// DefaultRegulatedRegions returns a copy of the built-in region set.
func DefaultRegulatedRegions() map[string]struct{} {
	out := make(map[string]struct{}, len(regulatedRegions))
	for k := range regulatedRegions {
		out[k] = struct{}{}
	}
	return out
}

// TenantNamer resolves a tenant's human-readable name, the last-resort
// disclosure value.
type TenantNamer interface {
	DisplayName(tenantID string) (string, bool)
}

// Service implements the disclosure workflow.
type Service struct {
	Store   assets.Store
	Client  *graph.Client
	Namer   TenantNamer
	Logger  *slog.Logger
	Regions map[string]struct{}
}

func NewService(store assets.Store, client *graph.Client, namer TenantNamer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Store:   store,
		Client:  client,
		Namer:   namer,
		Logger:  logger,
		Regions: DefaultRegulatedRegions(),
	}
}

type recommendationEnvelope struct {
	Data []struct {
		Recommendation string `json:"recommendation"`
	} `json:"data"`
}

// EnsureSettings returns disclosure values for an account. Persisted
// settings with both fields present win without a network call. Otherwise
// the platform's recommendation endpoint is asked, and its answer is
// persisted with source RECOMMENDATION. When no recommendation exists the
// tenant display name fills both fields, source MANUAL. Persistence is
// best-effort: a degraded store never fails this read path.
func (s *Service) EnsureSettings(ctx context.Context, rc reqctx.Context, accountID string) (assets.ComplianceSettings, error) {
	accountID = tenant.NormalizeAccountID(accountID)

	persisted, ok, err := s.Store.Compliance(ctx, rc.TenantID, accountID)
	if err != nil && !errors.Is(err, assets.ErrSchemaMissing) {
		return assets.ComplianceSettings{}, fmt.Errorf("compliance: load settings: %w", err)
	}
	if ok && persisted.Complete() {
		return persisted, nil
	}

	if rec := s.fetchRecommendation(ctx, rc, accountID); rec != "" {
		cs := assets.ComplianceSettings{
			Beneficiary: rec,
			Payor:       rec,
			Source:      assets.SourceRecommendation,
		}
		s.persist(ctx, rc.TenantID, accountID, cs)
		return cs, nil
	}

	name, _ := s.Namer.DisplayName(rc.TenantID)
	if name == "" {
		return assets.ComplianceSettings{}, &Error{
			TenantID:  rc.TenantID,
			AccountID: accountID,
			Hint:      "no recommendation available and tenant has no display name; set beneficiary and payor explicitly",
		}
	}
	cs := assets.ComplianceSettings{
		Beneficiary: name,
		Payor:       name,
		Source:      assets.SourceManual,
	}
	s.persist(ctx, rc.TenantID, accountID, cs)
	return cs, nil
}

func (s *Service) fetchRecommendation(ctx context.Context, rc reqctx.Context, accountID string) string {
	rc.AccountID = accountID
	resp, err := s.Client.Do(ctx, rc, graph.Request{
		Method: "GET",
		Path:   accountID + "/dsa_recommendations",
	})
	if err != nil {
		// A missing recommendation is expected on many accounts; the
		// fallback chain handles it.
		s.Logger.Debug("disclosure recommendation fetch failed",
			"tenant_id", rc.TenantID, "account_id", accountID, "error", redact.Error(err))
		return ""
	}
	var env recommendationEnvelope
	if err := json.Unmarshal(resp.Data, &env); err != nil {
		s.Logger.Debug("disclosure recommendation malformed",
			"tenant_id", rc.TenantID, "account_id", accountID, "error", err.Error())
		return ""
	}
	for _, d := range env.Data {
		if v := strings.TrimSpace(d.Recommendation); v != "" {
			return v
		}
	}
	return ""
}

func (s *Service) persist(ctx context.Context, tenantID, accountID string, cs assets.ComplianceSettings) {
	if err := s.Store.SaveCompliance(ctx, tenantID, accountID, cs); err != nil {
		s.Logger.Warn("disclosure settings not persisted",
			"tenant_id", tenantID, "account_id", accountID, "error", err.Error())
	}
}

// Save persists operator-supplied disclosure values with source MANUAL.
// Unlike EnsureSettings, a store failure here is a hard error: the operator
// asked for a write.
func (s *Service) Save(ctx context.Context, rc reqctx.Context, accountID string, cs assets.ComplianceSettings) error {
	accountID = tenant.NormalizeAccountID(accountID)
	if cs.Source == "" {
		cs.Source = assets.SourceManual
	}
	if err := s.Store.SaveCompliance(ctx, rc.TenantID, accountID, cs); err != nil {
		return fmt.Errorf("compliance: save settings: %w", err)
	}
	return nil
}

// AttachIfApplicable merges disclosure fields into payload when any
// targeted country is regulated. Payload is modified in place; a non-nil
// error means the ad must not be created.
func (s *Service) AttachIfApplicable(ctx context.Context, rc reqctx.Context, accountID string, targetingCountries []string, payload map[string]any) error {
	if !s.anyRegulated(targetingCountries) {
		return nil
	}
	cs, err := s.EnsureSettings(ctx, rc, accountID)
	if err != nil {
		return err
	}
	payload["dsa_beneficiary"] = cs.Beneficiary
	payload["dsa_payor"] = cs.Payor
	return nil
}

func (s *Service) anyRegulated(countries []string) bool {
	for _, c := range countries {
		if _, ok := s.Regions[strings.ToUpper(strings.TrimSpace(c))]; ok {
			return true
		}
	}
	return false
}
