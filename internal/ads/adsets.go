package ads

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/policy"
	"github.com/promogate/promogate/internal/reqctx"
)

var adSetFields = []string{
	"id", "name", "status", "campaign_id", "optimization_goal",
	"billing_event", "bid_amount", "daily_budget", "lifetime_budget",
	"targeting",
}

type ListAdSetsInput struct {
	AccountID  string `json:"account_id"`
	CampaignID string `json:"campaign_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type ListAdSetsResult struct {
	AdSets []AdSet `json:"ad_sets"`
	After  string  `json:"after,omitempty"`
	Stale  bool    `json:"stale,omitempty"`
}

func (s *Service) ListAdSets(ctx context.Context, rc reqctx.Context, in ListAdSetsInput) (ListAdSetsResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return ListAdSetsResult{}, err
	}

	q := url.Values{}
	q.Set("fields", graph.FieldsParam(adSetFields))
	if in.Limit > 0 {
		q.Set("limit", strconv.Itoa(in.Limit))
	}
	path := rc.AccountID + "/adsets"
	if in.CampaignID != "" {
		path = in.CampaignID + "/adsets"
	}
	key := graph.CacheKey("adsets", rc.AccountID, path, q.Encode())

	raw, stale, err := s.cachedRead(ctx, rc, key, graph.Request{Method: "GET", Path: path, Query: q})
	if err != nil {
		return ListAdSetsResult{}, err
	}
	sets, after, err := decodeList(raw, decodeAdSet)
	if err != nil {
		return ListAdSetsResult{}, err
	}
	return ListAdSetsResult{AdSets: sets, After: after, Stale: stale}, nil
}

type CreateAdSetInput struct {
	AccountID        string `json:"account_id"`
	CampaignID       string `json:"campaign_id"`
	Name             string `json:"name"`
	Status           string `json:"status,omitempty"`
	OptimizationGoal string `json:"optimization_goal,omitempty"`
	BillingEvent     string `json:"billing_event,omitempty"`
	BidStrategy      string `json:"bid_strategy,omitempty"`
	BidAmount        *int64 `json:"bid_amount,omitempty"`
	DailyBudget      *int64 `json:"daily_budget,omitempty"`
	LifetimeBudget   *int64 `json:"lifetime_budget,omitempty"`

	AgeMin            int      `json:"age_min,omitempty"`
	AgeMax            int      `json:"age_max,omitempty"`
	Countries         []string `json:"countries,omitempty"`
	Locales           []int    `json:"locales,omitempty"`
	InterestIDs       []string `json:"interest_ids,omitempty"`
	CustomAudienceIDs []string `json:"custom_audience_ids,omitempty"`

	// DisableAudienceAutomation opts the ad set out of upstream audience
	// expansion, which some objectives reject when left on.
	DisableAudienceAutomation bool `json:"disable_audience_automation,omitempty"`
}

func (s *Service) CreateAdSet(ctx context.Context, rc reqctx.Context, in CreateAdSetInput) (MutationResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return MutationResult{}, err
	}
	if strings.TrimSpace(in.Name) == "" || in.CampaignID == "" {
		return MutationResult{}, errors.New("ad set name and campaign id are required")
	}

	status := in.Status
	if status == "" {
		status = "PAUSED"
	}
	targeting := map[string]any{}
	if in.AgeMin > 0 {
		targeting["age_min"] = in.AgeMin
	}
	if in.AgeMax > 0 {
		targeting["age_max"] = in.AgeMax
	}
	if len(in.Countries) > 0 {
		targeting["geo_locations"] = map[string]any{"countries": in.Countries}
	}
	if len(in.Locales) > 0 {
		targeting["locales"] = in.Locales
	}
	if len(in.InterestIDs) > 0 {
		targeting["interests"] = idObjects(in.InterestIDs)
	}
	if len(in.CustomAudienceIDs) > 0 {
		targeting["custom_audiences"] = idObjects(in.CustomAudienceIDs)
	}
	if in.DisableAudienceAutomation {
		targeting["targeting_automation"] = map[string]any{"advantage_audience": 0}
	}

	body := map[string]any{
		"name":        in.Name,
		"campaign_id": in.CampaignID,
		"status":      status,
	}
	if len(targeting) > 0 {
		body["targeting"] = targeting
	}
	if in.OptimizationGoal != "" {
		body["optimization_goal"] = in.OptimizationGoal
	}
	if in.BillingEvent != "" {
		body["billing_event"] = in.BillingEvent
	}
	if in.BidStrategy != "" {
		body["bid_strategy"] = in.BidStrategy
	}
	if v := formatMinorUnits(in.BidAmount); v != "" {
		body["bid_amount"] = v
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
			Operation:       "create_adset",
			BudgetMandatory: true,
			Next:            policy.Budget{Daily: in.DailyBudget, Lifetime: in.LifetimeBudget},
			Targeting: &policy.Targeting{
				AgeMin:             in.AgeMin,
				AgeMax:             in.AgeMax,
				HasInterests:       len(in.InterestIDs) > 0,
				HasCustomAudiences: len(in.CustomAudienceIDs) > 0,
			},
		},
		graph.Request{Method: "POST", Path: rc.AccountID + "/adsets", Body: body},
		graph.CacheKey("adsets", rc.AccountID),
	)
	if err != nil {
		return MutationResult{}, err
	}
	id, err := decodeCreateResult(raw)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{ID: id, Warnings: eval.Warnings, RequiresApproval: eval.RequiresApproval}, nil
}

type UpdateAdSetInput struct {
	AccountID      string `json:"account_id"`
	AdSetID        string `json:"adset_id"`
	Name           string `json:"name,omitempty"`
	Status         string `json:"status,omitempty"`
	BidAmount      *int64 `json:"bid_amount,omitempty"`
	DailyBudget    *int64 `json:"daily_budget,omitempty"`
	LifetimeBudget *int64 `json:"lifetime_budget,omitempty"`
}

func (s *Service) UpdateAdSet(ctx context.Context, rc reqctx.Context, in UpdateAdSetInput) (MutationResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return MutationResult{}, err
	}
	if in.AdSetID == "" {
		return MutationResult{}, errors.New("ad set id is required")
	}

	currentRaw, err := s.fetchOne(ctx, rc, graph.Request{
		Method: "GET",
		Path:   in.AdSetID,
		Query:  url.Values{"fields": {graph.FieldsParam([]string{"id", "status", "daily_budget", "lifetime_budget", "targeting"})}},
	})
	if err != nil {
		return MutationResult{}, fmt.Errorf("load current ad set: %w", err)
	}
	current, err := decodeAdSet(currentRaw)
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
	if v := formatMinorUnits(in.BidAmount); v != "" {
		body["bid_amount"] = v
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
			Operation:        "update_adset",
			Current:          policy.Budget{Daily: current.DailyBudget, Lifetime: current.LifetimeBudget},
			Next:             policy.Budget{Daily: in.DailyBudget, Lifetime: in.LifetimeBudget},
			ActivatingPaused: current.Status == "PAUSED" && in.Status == "ACTIVE",
		},
		graph.Request{Method: "POST", Path: in.AdSetID, Body: body},
		graph.CacheKey("adsets", rc.AccountID),
	)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{ID: in.AdSetID, Warnings: eval.Warnings, RequiresApproval: eval.RequiresApproval}, nil
}

func idObjects(ids []string) []map[string]string {
	out := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]string{"id": id})
	}
	return out
}
