package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/policy"
	"github.com/promogate/promogate/internal/reqctx"
)

var campaignFields = []string{
	"id", "name", "status", "effective_status", "objective",
	"daily_budget", "lifetime_budget", "special_ad_categories",
	"created_time", "updated_time",
}

// MutationResult is the common outcome of create/update operations.
type MutationResult struct {
	ID               string   `json:"id"`
	Warnings         []string `json:"warnings,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
}

type ListCampaignsInput struct {
	AccountID    string   `json:"account_id"`
	StatusFilter []string `json:"status_filter,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

type ListCampaignsResult struct {
	Campaigns []Campaign `json:"campaigns"`
	After     string     `json:"after,omitempty"`
	Stale     bool       `json:"stale,omitempty"`
}

func (s *Service) ListCampaigns(ctx context.Context, rc reqctx.Context, in ListCampaignsInput) (ListCampaignsResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return ListCampaignsResult{}, err
	}

	q := url.Values{}
	q.Set("fields", graph.FieldsParam(campaignFields))
	if len(in.StatusFilter) > 0 {
		q.Set("effective_status", graph.JSONQueryValue(in.StatusFilter))
	}
	if in.Limit > 0 {
		q.Set("limit", strconv.Itoa(in.Limit))
	}
	key := graph.CacheKey("campaigns", rc.AccountID, q.Encode())

	raw, stale, err := s.cachedRead(ctx, rc, key, graph.Request{
		Method: "GET",
		Path:   rc.AccountID + "/campaigns",
		Query:  q,
	})
	if err != nil {
		return ListCampaignsResult{}, err
	}
	campaigns, after, err := decodeList(raw, decodeCampaign)
	if err != nil {
		return ListCampaignsResult{}, err
	}
	return ListCampaignsResult{Campaigns: campaigns, After: after, Stale: stale}, nil
}

type CreateCampaignInput struct {
	AccountID           string   `json:"account_id"`
	Name                string   `json:"name"`
	Objective           string   `json:"objective"`
	Status              string   `json:"status,omitempty"`
	DailyBudget         *int64   `json:"daily_budget,omitempty"`
	LifetimeBudget      *int64   `json:"lifetime_budget,omitempty"`
	SpecialAdCategories []string `json:"special_ad_categories,omitempty"`
}

func (s *Service) CreateCampaign(ctx context.Context, rc reqctx.Context, in CreateCampaignInput) (MutationResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return MutationResult{}, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return MutationResult{}, errors.New("campaign name is required")
	}

	status := in.Status
	if status == "" {
		// New campaigns start paused; activation is a separate, reviewed
		// mutation.
		status = "PAUSED"
	}
	categories := in.SpecialAdCategories
	if categories == nil {
		categories = []string{}
	}
	body := map[string]any{
		"name":                  in.Name,
		"objective":             in.Objective,
		"status":                status,
		"special_ad_categories": categories,
	}
	if v := formatMinorUnits(in.DailyBudget); v != "" {
		body["daily_budget"] = v
	}
	if v := formatMinorUnits(in.LifetimeBudget); v != "" {
		body["lifetime_budget"] = v
	}

	raw, eval, err := s.mutate(ctx, rc,
		policy.MutationInput{
			TenantID:        rc.TenantID,
			Operation:       "create_campaign",
			BudgetMandatory: true,
			Next:            policy.Budget{Daily: in.DailyBudget, Lifetime: in.LifetimeBudget},
		},
		graph.Request{Method: "POST", Path: rc.AccountID + "/campaigns", Body: body},
		graph.CacheKey("campaigns", rc.AccountID),
	)
	if err != nil {
		if graph.IsPaymentMethodError(err) {
			var api *graph.APIError
			errors.As(err, &api)
			return MutationResult{}, &graph.PaymentMethodRequiredError{AccountID: rc.AccountID, Cause: api}
		}
		return MutationResult{}, err
	}
	id, err := decodeCreateResult(raw)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{ID: id, Warnings: eval.Warnings, RequiresApproval: eval.RequiresApproval}, nil
}

type UpdateCampaignInput struct {
	AccountID      string `json:"account_id"`
	CampaignID     string `json:"campaign_id"`
	Name           string `json:"name,omitempty"`
	Status         string `json:"status,omitempty"`
	DailyBudget    *int64 `json:"daily_budget,omitempty"`
	LifetimeBudget *int64 `json:"lifetime_budget,omitempty"`
}

func (s *Service) UpdateCampaign(ctx context.Context, rc reqctx.Context, in UpdateCampaignInput) (MutationResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return MutationResult{}, err
	}
	if in.CampaignID == "" {
		return MutationResult{}, errors.New("campaign id is required")
	}

	// Budget-increase and paused-activation checks need the current
	// upstream state.
	currentRaw, err := s.fetchOne(ctx, rc, graph.Request{
		Method: "GET",
		Path:   in.CampaignID,
		Query:  url.Values{"fields": {graph.FieldsParam([]string{"id", "status", "daily_budget", "lifetime_budget"})}},
	})
	if err != nil {
		return MutationResult{}, fmt.Errorf("load current campaign: %w", err)
	}
	current, err := decodeCampaign(currentRaw)
	if err != nil {
		return MutationResult{}, err
	}

	body := map[string]any{}
	if in.Name != "" {
		body["name"] = in.Name
	}
	if in.Status != "" {
		body["status"] = in.Status
	}
	if v := formatMinorUnits(in.DailyBudget); v != "" {
		body["daily_budget"] = v
	}
	if v := formatMinorUnits(in.LifetimeBudget); v != "" {
		body["lifetime_budget"] = v
	}
	if len(body) == 0 {
		return MutationResult{}, errors.New("no fields to update")
	}

	_, eval, err := s.mutate(ctx, rc,
		policy.MutationInput{
			TenantID:         rc.TenantID,
			Operation:        "update_campaign",
			Current:          policy.Budget{Daily: current.DailyBudget, Lifetime: current.LifetimeBudget},
			Next:             policy.Budget{Daily: in.DailyBudget, Lifetime: in.LifetimeBudget},
			ActivatingPaused: current.Status == "PAUSED" && in.Status == "ACTIVE",
		},
		graph.Request{Method: "POST", Path: in.CampaignID, Body: body},
		graph.CacheKey("campaigns", rc.AccountID),
		graph.CacheKey("insights", in.CampaignID),
	)
	if err != nil {
		return MutationResult{}, err
	}
	// Updates reply {"success":true}; the id does not change.
	return MutationResult{ID: in.CampaignID, Warnings: eval.Warnings, RequiresApproval: eval.RequiresApproval}, nil
}

type DuplicateCampaignInput struct {
	AccountID  string `json:"account_id"`
	CampaignID string `json:"campaign_id"`
	DeepCopy   bool   `json:"deep_copy,omitempty"`
	NewName    string `json:"new_name,omitempty"`
}

type DuplicateCampaignResult struct {
	CopiedCampaignID string   `json:"copied_campaign_id"`
	Warnings         []string `json:"warnings,omitempty"`
	RequiresApproval bool     `json:"requires_approval,omitempty"`
}

// DuplicateCampaign clones a campaign through the upstream copies edge. The
// copy always starts paused, and deep copies carry a policy approval
// requirement.
func (s *Service) DuplicateCampaign(ctx context.Context, rc reqctx.Context, in DuplicateCampaignInput) (DuplicateCampaignResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return DuplicateCampaignResult{}, err
	}
	if in.CampaignID == "" {
		return DuplicateCampaignResult{}, errors.New("campaign id is required")
	}

	renameSuffix := " copy " + uuid.NewString()[:8]
	body := map[string]any{
		"deep_copy":     in.DeepCopy,
		"status_option": "PAUSED",
		"rename_options": map[string]any{
			"rename_suffix": renameSuffix,
		},
	}
	if in.NewName != "" {
		body["rename_options"] = map[string]any{"rename_strategy": "NO_RENAME"}
		body["name"] = in.NewName
	}

	raw, eval, err := s.mutate(ctx, rc,
		policy.MutationInput{
			TenantID:            rc.TenantID,
			Operation:           "duplicate_campaign",
			DeepCopyDuplication: in.DeepCopy,
		},
		graph.Request{Method: "POST", Path: in.CampaignID + "/copies", Body: body},
		graph.CacheKey("campaigns", rc.AccountID),
	)
	if err != nil {
		return DuplicateCampaignResult{}, err
	}

	var out struct {
		CopiedCampaignID string `json:"copied_campaign_id"`
		ID               string `json:"id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return DuplicateCampaignResult{}, fmt.Errorf("decode copy result: %w", err)
	}
	id := out.CopiedCampaignID
	if id == "" {
		id = out.ID
	}
	return DuplicateCampaignResult{CopiedCampaignID: id, Warnings: eval.Warnings, RequiresApproval: eval.RequiresApproval}, nil
}
