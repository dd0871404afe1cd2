package ads

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Campaign is the domain view of an upstream campaign. Budget values are in
// the account currency's minor units; nil means not set.
type Campaign struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Status              string   `json:"status"`
	EffectiveStatus     string   `json:"effective_status,omitempty"`
	Objective           string   `json:"objective,omitempty"`
	DailyBudget         *int64   `json:"daily_budget,omitempty"`
	LifetimeBudget      *int64   `json:"lifetime_budget,omitempty"`
	SpecialAdCategories []string `json:"special_ad_categories,omitempty"`
	CreatedTime         string   `json:"created_time,omitempty"`
	UpdatedTime         string   `json:"updated_time,omitempty"`
}

// AdSetTargeting is the subset of targeting the policy and compliance
// layers care about.
type AdSetTargeting struct {
	AgeMin             int      `json:"age_min,omitempty"`
	AgeMax             int      `json:"age_max,omitempty"`
	Countries          []string `json:"countries,omitempty"`
	HasInterests       bool     `json:"has_interests,omitempty"`
	HasCustomAudiences bool     `json:"has_custom_audiences,omitempty"`
}

type AdSet struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Status           string         `json:"status"`
	CampaignID       string         `json:"campaign_id,omitempty"`
	OptimizationGoal string         `json:"optimization_goal,omitempty"`
	BillingEvent     string         `json:"billing_event,omitempty"`
	BidAmount        *int64         `json:"bid_amount,omitempty"`
	DailyBudget      *int64         `json:"daily_budget,omitempty"`
	LifetimeBudget   *int64         `json:"lifetime_budget,omitempty"`
	Targeting        AdSetTargeting `json:"targeting"`
}

type Ad struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	AdSetID    string `json:"adset_id,omitempty"`
	CreativeID string `json:"creative_id,omitempty"`
}

// InsightRow is one aggregated metrics row.
type InsightRow struct {
	DateStart   string `json:"date_start"`
	DateStop    string `json:"date_stop"`
	Impressions int64  `json:"impressions"`
	Clicks      int64  `json:"clicks"`
	Reach       int64  `json:"reach"`
	Spend       string `json:"spend"`
	CTR         string `json:"ctr,omitempty"`
	CPC         string `json:"cpc,omitempty"`
}

// listEnvelope is the upstream's collection wrapper.
type listEnvelope struct {
	Data   []json.RawMessage `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

// The upstream serializes money and counters as strings. Each resource gets
// one wire struct and one translation function; nothing outside this file
// touches the wire shapes.

type campaignWire struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Status              string   `json:"status"`
	EffectiveStatus     string   `json:"effective_status"`
	Objective           string   `json:"objective"`
	DailyBudget         string   `json:"daily_budget"`
	LifetimeBudget      string   `json:"lifetime_budget"`
	SpecialAdCategories []string `json:"special_ad_categories"`
	CreatedTime         string   `json:"created_time"`
	UpdatedTime         string   `json:"updated_time"`
}

func decodeCampaign(raw json.RawMessage) (Campaign, error) {
	var w campaignWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Campaign{}, fmt.Errorf("decode campaign: %w", err)
	}
	return Campaign{
		ID:                  w.ID,
		Name:                w.Name,
		Status:              w.Status,
		EffectiveStatus:     w.EffectiveStatus,
		Objective:           w.Objective,
		DailyBudget:         parseMinorUnits(w.DailyBudget),
		LifetimeBudget:      parseMinorUnits(w.LifetimeBudget),
		SpecialAdCategories: w.SpecialAdCategories,
		CreatedTime:         w.CreatedTime,
		UpdatedTime:         w.UpdatedTime,
	}, nil
}

type adSetWire struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Status           string `json:"status"`
	CampaignID       string `json:"campaign_id"`
	OptimizationGoal string `json:"optimization_goal"`
	BillingEvent     string `json:"billing_event"`
	BidAmount        string `json:"bid_amount"`
	DailyBudget      string `json:"daily_budget"`
	LifetimeBudget   string `json:"lifetime_budget"`
	Targeting        struct {
		AgeMin       int `json:"age_min"`
		AgeMax       int `json:"age_max"`
		GeoLocations struct {
			Countries []string `json:"countries"`
		} `json:"geo_locations"`
		Interests       []json.RawMessage `json:"interests"`
		CustomAudiences []json.RawMessage `json:"custom_audiences"`
	} `json:"targeting"`
}

func decodeAdSet(raw json.RawMessage) (AdSet, error) {
	var w adSetWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return AdSet{}, fmt.Errorf("decode ad set: %w", err)
	}
	return AdSet{
		ID:               w.ID,
		Name:             w.Name,
		Status:           w.Status,
		CampaignID:       w.CampaignID,
		OptimizationGoal: w.OptimizationGoal,
		BillingEvent:     w.BillingEvent,
		BidAmount:        parseMinorUnits(w.BidAmount),
		DailyBudget:      parseMinorUnits(w.DailyBudget),
		LifetimeBudget:   parseMinorUnits(w.LifetimeBudget),
		Targeting: AdSetTargeting{
			AgeMin:             w.Targeting.AgeMin,
			AgeMax:             w.Targeting.AgeMax,
			Countries:          w.Targeting.GeoLocations.Countries,
			HasInterests:       len(w.Targeting.Interests) > 0,
			HasCustomAudiences: len(w.Targeting.CustomAudiences) > 0,
		},
	}, nil
}

type adWire struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	AdSetID  string `json:"adset_id"`
	Creative struct {
		ID string `json:"id"`
	} `json:"creative"`
}

func decodeAd(raw json.RawMessage) (Ad, error) {
	var w adWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Ad{}, fmt.Errorf("decode ad: %w", err)
	}
	return Ad{
		ID:         w.ID,
		Name:       w.Name,
		Status:     w.Status,
		AdSetID:    w.AdSetID,
		CreativeID: w.Creative.ID,
	}, nil
}

type insightWire struct {
	DateStart   string `json:"date_start"`
	DateStop    string `json:"date_stop"`
	Impressions string `json:"impressions"`
	Clicks      string `json:"clicks"`
	Reach       string `json:"reach"`
	Spend       string `json:"spend"`
	CTR         string `json:"ctr"`
	CPC         string `json:"cpc"`
}

func decodeInsightRow(raw json.RawMessage) (InsightRow, error) {
	var w insightWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return InsightRow{}, fmt.Errorf("decode insight row: %w", err)
	}
	return InsightRow{
		DateStart:   w.DateStart,
		DateStop:    w.DateStop,
		Impressions: parseCount(w.Impressions),
		Clicks:      parseCount(w.Clicks),
		Reach:       parseCount(w.Reach),
		Spend:       w.Spend,
		CTR:         w.CTR,
		CPC:         w.CPC,
	}, nil
}

func decodeList[T any](raw json.RawMessage, decode func(json.RawMessage) (T, error)) ([]T, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("decode collection: %w", err)
	}
	out := make([]T, 0, len(env.Data))
	for _, item := range env.Data {
		v, err := decode(item)
		if err != nil {
			return nil, "", err
		}
		out = append(out, v)
	}
	return out, env.Paging.Cursors.After, nil
}

func parseMinorUnits(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatMinorUnits(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
