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

var adFields = []string{"id", "name", "status", "adset_id", "creative"}

type ListAdsInput struct {
	AccountID string `json:"account_id"`
	AdSetID   string `json:"adset_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type ListAdsResult struct {
	Ads   []Ad   `json:"ads"`
	After string `json:"after,omitempty"`
	Stale bool   `json:"stale,omitempty"`
}

func (s *Service) ListAds(ctx context.Context, rc reqctx.Context, in ListAdsInput) (ListAdsResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return ListAdsResult{}, err
	}

	q := url.Values{}
	q.Set("fields", graph.FieldsParam(adFields))
	if in.Limit > 0 {
		q.Set("limit", strconv.Itoa(in.Limit))
	}
	path := rc.AccountID + "/ads"
	if in.AdSetID != "" {
		path = in.AdSetID + "/ads"
	}
	key := graph.CacheKey("ads", rc.AccountID, path, q.Encode())

	raw, stale, err := s.cachedRead(ctx, rc, key, graph.Request{Method: "GET", Path: path, Query: q})
	if err != nil {
		return ListAdsResult{}, err
	}
	items, after, err := decodeList(raw, decodeAd)
	if err != nil {
		return ListAdsResult{}, err
	}
	return ListAdsResult{Ads: items, After: after, Stale: stale}, nil
}

type CreateAdInput struct {
	AccountID string `json:"account_id"`
	AdSetID   string `json:"adset_id"`
	Name      string `json:"name"`
	Status    string `json:"status,omitempty"`

	// CreativeID references an existing creative. When empty, an inline
	// link creative is built from PageID/Message/LinkURL.
	CreativeID string `json:"creative_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	Message    string `json:"message,omitempty"`
	LinkURL    string `json:"link_url,omitempty"`
}

// CreateAd builds an ad under an ad set. Before submitting, the ad set's
// targeted countries are inspected and regulatory disclosure fields are
// merged in when a regulated region is targeted. Inline creatives resolve
// their promoted page locally, never via upstream page edges.
func (s *Service) CreateAd(ctx context.Context, rc reqctx.Context, in CreateAdInput) (MutationResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return MutationResult{}, err
	}
	if strings.TrimSpace(in.Name) == "" || in.AdSetID == "" {
		return MutationResult{}, errors.New("ad name and ad set id are required")
	}

	adSetRaw, err := s.fetchOne(ctx, rc, graph.Request{
		Method: "GET",
		Path:   in.AdSetID,
		Query:  url.Values{"fields": {graph.FieldsParam([]string{"id", "targeting"})}},
	})
	if err != nil {
		return MutationResult{}, fmt.Errorf("load ad set targeting: %w", err)
	}
	adSet, err := decodeAdSet(adSetRaw)
	if err != nil {
		return MutationResult{}, err
	}

	status := in.Status
	if status == "" {
		status = "PAUSED"
	}
	body := map[string]any{
		"name":     in.Name,
		"adset_id": in.AdSetID,
		"status":   status,
	}
	if in.CreativeID != "" {
		body["creative"] = map[string]any{"creative_id": in.CreativeID}
	} else {
		pageID, err := s.pages.Resolve(ctx, rc.TenantID, rc.AccountID, in.PageID)
		if err != nil {
			return MutationResult{}, err
		}
		body["creative"] = map[string]any{
			"object_story_spec": map[string]any{
				"page_id": pageID,
				"link_data": map[string]any{
					"message": in.Message,
					"link":    in.LinkURL,
				},
			},
		}
	}

	if err := s.compliance.AttachIfApplicable(ctx, rc, rc.AccountID, adSet.Targeting.Countries, body); err != nil {
		return MutationResult{}, err
	}

	raw, eval, err := s.mutate(ctx, rc,
		policy.MutationInput{
			TenantID:  rc.TenantID,
			Operation: "create_ad",
		},
		graph.Request{Method: "POST", Path: rc.AccountID + "/ads", Body: body},
		graph.CacheKey("ads", rc.AccountID),
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

type UpdateAdInput struct {
	AccountID string `json:"account_id"`
	AdID      string `json:"ad_id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status,omitempty"`
}

func (s *Service) UpdateAd(ctx context.Context, rc reqctx.Context, in UpdateAdInput) (MutationResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return MutationResult{}, err
	}
	if in.AdID == "" {
		return MutationResult{}, errors.New("ad id is required")
	}

	body := map[string]any{}
	if in.Name != "" {
		body["name"] = in.Name
	}
	if in.Status != "" {
		body["status"] = in.Status
	}
	if len(body) == 0 {
		return MutationResult{}, errors.New("no fields to update")
	}

	activating := false
	if in.Status == "ACTIVE" {
		currentRaw, err := s.fetchOne(ctx, rc, graph.Request{
			Method: "GET",
			Path:   in.AdID,
			Query:  url.Values{"fields": {graph.FieldsParam([]string{"id", "status"})}},
		})
		if err != nil {
			return MutationResult{}, fmt.Errorf("load current ad: %w", err)
		}
		current, err := decodeAd(currentRaw)
		if err != nil {
			return MutationResult{}, err
		}
		activating = current.Status == "PAUSED"
	}

	_, eval, err := s.mutate(ctx, rc,
		policy.MutationInput{
			TenantID:         rc.TenantID,
			Operation:        "update_ad",
			ActivatingPaused: activating,
		},
		graph.Request{Method: "POST", Path: in.AdID, Body: body},
		graph.CacheKey("ads", rc.AccountID),
	)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{ID: in.AdID, Warnings: eval.Warnings, RequiresApproval: eval.RequiresApproval}, nil
}
