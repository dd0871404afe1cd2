package ads

import (
	"context"
	"errors"
	"net/url"

	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/reqctx"
)

var defaultInsightFields = []string{
	"date_start", "date_stop", "impressions", "clicks", "reach",
	"spend", "ctr", "cpc",
}

type GetInsightsInput struct {
	AccountID string `json:"account_id"`
	// ObjectID is a campaign, ad set or ad id; empty means account level.
	ObjectID string `json:"object_id,omitempty"`
	// Level aggregates rows: account, campaign, adset or ad.
	Level string `json:"level,omitempty"`
	// DatePreset is an upstream preset like last_7d. Mutually exclusive
	// with Since/Until.
	DatePreset string   `json:"date_preset,omitempty"`
	Since      string   `json:"since,omitempty"`
	Until      string   `json:"until,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

type GetInsightsResult struct {
	Rows  []InsightRow `json:"rows"`
	After string       `json:"after,omitempty"`
	Stale bool         `json:"stale,omitempty"`
}

func (s *Service) GetInsights(ctx context.Context, rc reqctx.Context, in GetInsightsInput) (GetInsightsResult, error) {
	rc, err := s.resolve(ctx, rc, in.AccountID)
	if err != nil {
		return GetInsightsResult{}, err
	}
	if in.DatePreset != "" && (in.Since != "" || in.Until != "") {
		return GetInsightsResult{}, errors.New("date_preset and since/until are mutually exclusive")
	}

	fields := in.Fields
	if len(fields) == 0 {
		fields = defaultInsightFields
	}
	q := url.Values{}
	q.Set("fields", graph.FieldsParam(fields))
	if in.Level != "" {
		q.Set("level", in.Level)
	}
	switch {
	case in.DatePreset != "":
		q.Set("date_preset", in.DatePreset)
	case in.Since != "" || in.Until != "":
		q.Set("time_range", graph.JSONQueryValue(map[string]string{
			"since": in.Since,
			"until": in.Until,
		}))
	}

	objectID := in.ObjectID
	if objectID == "" {
		objectID = rc.AccountID
	}
	key := graph.CacheKey("insights", objectID, q.Encode())

	raw, stale, err := s.cachedRead(ctx, rc, key, graph.Request{
		Method: "GET",
		Path:   objectID + "/insights",
		Query:  q,
	})
	if err != nil {
		return GetInsightsResult{}, err
	}
	rows, after, err := decodeList(raw, decodeInsightRow)
	if err != nil {
		return GetInsightsResult{}, err
	}
	return GetInsightsResult{Rows: rows, After: after, Stale: stale}, nil
}
