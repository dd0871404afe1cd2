package mcp

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/promogate/promogate/internal/ads"
	"github.com/promogate/promogate/internal/compliance"
	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/pages"
	"github.com/promogate/promogate/internal/policy"
	"github.com/promogate/promogate/internal/redact"
	"github.com/promogate/promogate/internal/tenant"
)

// toolError converts internal failures into the machine-readable
// code/hint text an MCP client sees. Actionable errors keep their
// remediation hint; everything else degrades to a generic message with
// the preserved diagnostic fields. All text passes the redaction boundary.
func toolError(err error) error {
	var code, hint string
	switch {
	case errors.Is(err, tenant.ErrAmbiguousAccount):
		code, hint = "ambiguous_account", "the account id belongs to multiple tenants; pass an explicit tenant id"
	case errors.Is(err, tenant.ErrIsolation):
		code, hint = "isolation_denied", "the bound tenant does not own this account or page"
	case errors.Is(err, ads.ErrTenantUnresolved):
		code, hint = "tenant_unresolved", "no tenant could be inferred from the account id; bind a tenant at startup"
	case errors.Is(err, policy.ErrViolation):
		code, hint = "policy_violation", "the mutation was rejected by governance policy"
	case errors.Is(err, pages.ErrPageResolution):
		code, hint = "page_unresolved", "set a default page for the account or pass page_id explicitly"
	case errors.Is(err, compliance.ErrCompliance):
		code, hint = "compliance_unavailable", "set beneficiary and payor via set_compliance_settings"
	case isPaymentError(err):
		code, hint = "payment_method_required", "add a funding source on the ad account and retry"
	case errors.Is(err, graph.ErrRetryBudgetExhausted):
		code, hint = "upstream_unavailable", "the platform API kept failing; retry later"
	default:
		code = "upstream_error"
	}
	if hint != "" {
		return fmt.Errorf("[%s] %s (%s)", code, redact.Error(err), hint)
	}
	return fmt.Errorf("[%s] %s", code, redact.Error(err))
}

func isPaymentError(err error) bool {
	var pm *graph.PaymentMethodRequiredError
	return errors.As(err, &pm)
}

// audit emits one line per mutating tool call, with the arguments passed
// through value redaction.
func (s *Server) audit(tool string, args map[string]any, err error) {
	attrs := []any{
		"tool", tool,
		"tenant_id", s.tenantID,
		"principal", s.principal,
		"args", redact.Value(args),
	}
	if err != nil {
		attrs = append(attrs, "error", redact.Error(err))
		s.logger.Warn("mcp mutation failed", attrs...)
		return
	}
	s.logger.Info("mcp mutation applied", attrs...)
}

func listCampaignsHandler(s *Server) sdk.ToolHandlerFor[ads.ListCampaignsInput, ads.ListCampaignsResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.ListCampaignsInput) (*sdk.CallToolResult, ads.ListCampaignsResult, error) {
		out, err := s.svc.ListCampaigns(ctx, s.rc(), in)
		if err != nil {
			return nil, ads.ListCampaignsResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func listAdSetsHandler(s *Server) sdk.ToolHandlerFor[ads.ListAdSetsInput, ads.ListAdSetsResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.ListAdSetsInput) (*sdk.CallToolResult, ads.ListAdSetsResult, error) {
		out, err := s.svc.ListAdSets(ctx, s.rc(), in)
		if err != nil {
			return nil, ads.ListAdSetsResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func listAdsHandler(s *Server) sdk.ToolHandlerFor[ads.ListAdsInput, ads.ListAdsResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.ListAdsInput) (*sdk.CallToolResult, ads.ListAdsResult, error) {
		out, err := s.svc.ListAds(ctx, s.rc(), in)
		if err != nil {
			return nil, ads.ListAdsResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func getInsightsHandler(s *Server) sdk.ToolHandlerFor[ads.GetInsightsInput, ads.GetInsightsResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.GetInsightsInput) (*sdk.CallToolResult, ads.GetInsightsResult, error) {
		out, err := s.svc.GetInsights(ctx, s.rc(), in)
		if err != nil {
			return nil, ads.GetInsightsResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func listPagesHandler(s *Server) sdk.ToolHandlerFor[ads.ListPagesInput, ads.ListPagesResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.ListPagesInput) (*sdk.CallToolResult, ads.ListPagesResult, error) {
		out, err := s.svc.ListPages(ctx, s.rc(), in)
		if err != nil {
			return nil, ads.ListPagesResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func getComplianceHandler(s *Server) sdk.ToolHandlerFor[ads.GetComplianceSettingsInput, ads.ComplianceSettingsResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.GetComplianceSettingsInput) (*sdk.CallToolResult, ads.ComplianceSettingsResult, error) {
		out, err := s.svc.GetComplianceSettings(ctx, s.rc(), in)
		if err != nil {
			return nil, ads.ComplianceSettingsResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

type metricsInput struct{}

type metricsResult struct {
	Counters map[string]int64 `json:"counters"`
}

func metricsHandler(s *Server) sdk.ToolHandlerFor[metricsInput, metricsResult] {
	return func(_ context.Context, _ *sdk.CallToolRequest, _ metricsInput) (*sdk.CallToolResult, metricsResult, error) {
		return nil, metricsResult{Counters: s.svc.Counters().Snapshot()}, nil
	}
}

func createCampaignHandler(s *Server) sdk.ToolHandlerFor[ads.CreateCampaignInput, ads.MutationResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.CreateCampaignInput) (*sdk.CallToolResult, ads.MutationResult, error) {
		out, err := s.svc.CreateCampaign(ctx, s.rc(), in)
		s.audit("create_campaign", map[string]any{"account_id": in.AccountID, "name": in.Name}, err)
		if err != nil {
			return nil, ads.MutationResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func updateCampaignHandler(s *Server) sdk.ToolHandlerFor[ads.UpdateCampaignInput, ads.MutationResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.UpdateCampaignInput) (*sdk.CallToolResult, ads.MutationResult, error) {
		out, err := s.svc.UpdateCampaign(ctx, s.rc(), in)
		s.audit("update_campaign", map[string]any{"account_id": in.AccountID, "campaign_id": in.CampaignID, "status": in.Status}, err)
		if err != nil {
			return nil, ads.MutationResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func duplicateCampaignHandler(s *Server) sdk.ToolHandlerFor[ads.DuplicateCampaignInput, ads.DuplicateCampaignResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.DuplicateCampaignInput) (*sdk.CallToolResult, ads.DuplicateCampaignResult, error) {
		out, err := s.svc.DuplicateCampaign(ctx, s.rc(), in)
		s.audit("duplicate_campaign", map[string]any{"account_id": in.AccountID, "campaign_id": in.CampaignID, "deep_copy": in.DeepCopy}, err)
		if err != nil {
			return nil, ads.DuplicateCampaignResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func createAdSetHandler(s *Server) sdk.ToolHandlerFor[ads.CreateAdSetInput, ads.MutationResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.CreateAdSetInput) (*sdk.CallToolResult, ads.MutationResult, error) {
		out, err := s.svc.CreateAdSet(ctx, s.rc(), in)
		s.audit("create_adset", map[string]any{"account_id": in.AccountID, "campaign_id": in.CampaignID, "name": in.Name}, err)
		if err != nil {
			return nil, ads.MutationResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func updateAdSetHandler(s *Server) sdk.ToolHandlerFor[ads.UpdateAdSetInput, ads.MutationResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.UpdateAdSetInput) (*sdk.CallToolResult, ads.MutationResult, error) {
		out, err := s.svc.UpdateAdSet(ctx, s.rc(), in)
		s.audit("update_adset", map[string]any{"account_id": in.AccountID, "adset_id": in.AdSetID, "status": in.Status}, err)
		if err != nil {
			return nil, ads.MutationResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func createAdHandler(s *Server) sdk.ToolHandlerFor[ads.CreateAdInput, ads.MutationResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.CreateAdInput) (*sdk.CallToolResult, ads.MutationResult, error) {
		out, err := s.svc.CreateAd(ctx, s.rc(), in)
		s.audit("create_ad", map[string]any{"account_id": in.AccountID, "adset_id": in.AdSetID, "name": in.Name}, err)
		if err != nil {
			return nil, ads.MutationResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

func updateAdHandler(s *Server) sdk.ToolHandlerFor[ads.UpdateAdInput, ads.MutationResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.UpdateAdInput) (*sdk.CallToolResult, ads.MutationResult, error) {
		out, err := s.svc.UpdateAd(ctx, s.rc(), in)
		s.audit("update_ad", map[string]any{"account_id": in.AccountID, "ad_id": in.AdID, "status": in.Status}, err)
		if err != nil {
			return nil, ads.MutationResult{}, toolError(err)
		}
		return nil, out, nil
	}
}

type setDefaultPageResult struct {
	OK bool `json:"ok"`
}

func setDefaultPageHandler(s *Server) sdk.ToolHandlerFor[ads.SetDefaultPageInput, setDefaultPageResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.SetDefaultPageInput) (*sdk.CallToolResult, setDefaultPageResult, error) {
		err := s.svc.SetDefaultPage(ctx, s.rc(), in)
		s.audit("set_default_page", map[string]any{"account_id": in.AccountID, "page_id": in.PageID}, err)
		if err != nil {
			return nil, setDefaultPageResult{}, toolError(err)
		}
		return nil, setDefaultPageResult{OK: true}, nil
	}
}

func launchCascadeHandler(s *Server) sdk.ToolHandlerFor[ads.LaunchCascadeInput, ads.LaunchCascadeResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.LaunchCascadeInput) (*sdk.CallToolResult, ads.LaunchCascadeResult, error) {
		out, err := s.svc.LaunchCascade(ctx, s.rc(), in)
		s.audit("launch_cascade", map[string]any{
			"account_id": in.AccountID,
			"campaign":   in.Campaign.Name,
			"run_id":     out.RunID,
		}, err)
		if err != nil {
			// Partial ids are returned so the operator can resume by hand.
			return nil, out, toolError(err)
		}
		return nil, out, nil
	}
}

func setComplianceHandler(s *Server) sdk.ToolHandlerFor[ads.SetComplianceSettingsInput, ads.ComplianceSettingsResult] {
	return func(ctx context.Context, _ *sdk.CallToolRequest, in ads.SetComplianceSettingsInput) (*sdk.CallToolResult, ads.ComplianceSettingsResult, error) {
		out, err := s.svc.SetComplianceSettings(ctx, s.rc(), in)
		s.audit("set_compliance_settings", map[string]any{"account_id": in.AccountID}, err)
		if err != nil {
			return nil, ads.ComplianceSettingsResult{}, toolError(err)
		}
		return nil, out, nil
	}
}
