package graph

import (
	"encoding/json"
	"net/http"
)

// Rate-limit telemetry arrives as up to three independently JSON-encoded
// response headers. Each parses on its own; a missing or malformed header
// degrades to its zero value instead of failing the call.
const (
	headerAppUsage     = "X-App-Usage"
	headerAccountUsage = "X-Ad-Account-Usage"
	headerBUCUsage     = "X-Business-Use-Case-Usage"
)

// AppUsage is the app-level throttling view.
type AppUsage struct {
	CallCount    int `json:"call_count"`
	TotalCPUTime int `json:"total_cputime"`
	TotalTime    int `json:"total_time"`
}

// AccountUsage is the per-ad-account throttling view.
type AccountUsage struct {
	AccUtilPct        float64 `json:"acc_id_util_pct"`
	ResetTimeDuration int     `json:"reset_time_duration"`
	AdsAPIAccessTier  string  `json:"ads_api_access_tier"`
}

// BUCEntry is one business-use-case throttling record.
type BUCEntry struct {
	Type                  string `json:"type"`
	CallCount             int    `json:"call_count"`
	TotalCPUTime          int    `json:"total_cputime"`
	TotalTime             int    `json:"total_time"`
	EstimatedTimeToRegain int    `json:"estimated_time_to_regain_access"`
}

// Usage is the structured rate-limit telemetry of one response.
type Usage struct {
	App      AppUsage
	Account  AccountUsage
	Business map[string][]BUCEntry
}

// ParseUsageHeaders extracts rate-limit telemetry from response headers.
func ParseUsageHeaders(h http.Header) Usage {
	var u Usage
	if raw := h.Get(headerAppUsage); raw != "" {
		// Ignore decode failures; telemetry must never fail a call.
		_ = json.Unmarshal([]byte(raw), &u.App)
	}
	if raw := h.Get(headerAccountUsage); raw != "" {
		_ = json.Unmarshal([]byte(raw), &u.Account)
	}
	if raw := h.Get(headerBUCUsage); raw != "" {
		_ = json.Unmarshal([]byte(raw), &u.Business)
	}
	return u
}

// Pressured reports whether any telemetry dimension is near its limit.
// Used only for logging; throttling decisions come from response codes.
func (u Usage) Pressured(thresholdPct float64) bool {
	if float64(u.App.CallCount) >= thresholdPct ||
		float64(u.App.TotalCPUTime) >= thresholdPct ||
		float64(u.App.TotalTime) >= thresholdPct {
		return true
	}
	return u.Account.AccUtilPct >= thresholdPct
}
