package ads

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/promogate/promogate/internal/autonomy"
	"github.com/promogate/promogate/internal/graph"
	"github.com/promogate/promogate/internal/policy"
	"github.com/promogate/promogate/internal/redact"
	"github.com/promogate/promogate/internal/reqctx"
)

// LaunchCascadeInput describes a full campaign launch: campaign, one ad
// set under it, one ad under that. Account and parent ids on the nested
// inputs are filled in by the run.
type LaunchCascadeInput struct {
	AccountID string              `json:"account_id"`
	Campaign  CreateCampaignInput `json:"campaign"`
	AdSet     CreateAdSetInput    `json:"adset"`
	Ad        CreateAdInput       `json:"ad"`
}

type LaunchCascadeResult struct {
	RunID        string   `json:"run_id"`
	CampaignID   string   `json:"campaign_id"`
	AdSetID      string   `json:"adset_id"`
	AdID         string   `json:"ad_id"`
	AppliedFixes []string `json:"applied_fixes,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// LaunchCascade creates campaign, ad set and ad as one run. Known
// correctable rejections (missing budget, missing bid strategy, audience
// automation conflicts, malformed creative URLs, locale mismatches) are
// fixed and the failing step is resubmitted, at most once per category
// for the whole run. Everything else, including isolation, rate-limit
// and payment errors, propagates untouched.
func (s *Service) LaunchCascade(ctx context.Context, rc reqctx.Context, in LaunchCascadeInput) (LaunchCascadeResult, error) {
	run := autonomy.NewStateMachine(nil)
	out := LaunchCascadeResult{RunID: run.RunID()}

	in.Campaign.AccountID = in.AccountID
	campaign, err := s.stepWithFixes(ctx, run, func() (MutationResult, error) {
		return s.CreateCampaign(ctx, rc, in.Campaign)
	}, func(autonomy.FixCategory) bool {
		return false // campaign-level rejections have no safe automatic fix
	})
	if err != nil {
		return out, err
	}
	out.CampaignID = campaign.ID
	out.Warnings = append(out.Warnings, campaign.Warnings...)

	in.AdSet.AccountID = in.AccountID
	in.AdSet.CampaignID = campaign.ID
	adSet, err := s.stepWithFixes(ctx, run, func() (MutationResult, error) {
		return s.CreateAdSet(ctx, rc, in.AdSet)
	}, func(cat autonomy.FixCategory) bool {
		switch cat {
		case autonomy.FixMissingBudget:
			if in.Campaign.DailyBudget == nil && in.Campaign.LifetimeBudget == nil {
				return false
			}
			in.AdSet.DailyBudget = in.Campaign.DailyBudget
			in.AdSet.LifetimeBudget = in.Campaign.LifetimeBudget
			return true
		case autonomy.FixMissingBid:
			if in.AdSet.BidStrategy != "" {
				return false
			}
			in.AdSet.BidStrategy = "LOWEST_COST_WITHOUT_CAP"
			return true
		case autonomy.FixUnsetAudienceFlag:
			if in.AdSet.DisableAudienceAutomation {
				return false
			}
			in.AdSet.DisableAudienceAutomation = true
			return true
		case autonomy.FixLocaleMismatch:
			if len(in.AdSet.Locales) == 0 {
				return false
			}
			in.AdSet.Locales = nil
			return true
		}
		return false
	})
	if err != nil {
		return out, err
	}
	out.AdSetID = adSet.ID
	out.Warnings = append(out.Warnings, adSet.Warnings...)

	in.Ad.AccountID = in.AccountID
	in.Ad.AdSetID = adSet.ID
	ad, err := s.stepWithFixes(ctx, run, func() (MutationResult, error) {
		return s.CreateAd(ctx, rc, in.Ad)
	}, func(cat autonomy.FixCategory) bool {
		if cat != autonomy.FixMalformedCreativeURL {
			return false
		}
		fixed, changed := repairCreativeURL(in.Ad.LinkURL)
		if !changed {
			return false
		}
		in.Ad.LinkURL = fixed
		return true
	})
	if err != nil {
		return out, err
	}
	out.AdID = ad.ID
	out.Warnings = append(out.Warnings, ad.Warnings...)

	for _, cat := range run.AppliedFixes() {
		out.AppliedFixes = append(out.AppliedFixes, string(cat))
	}
	if run.TotalAttempts() > 0 {
		s.logger.Info("cascade_fixes_applied",
			slog.String("run_id", run.RunID()),
			slog.String("tenant", rc.TenantID),
			slog.Any("fixes", out.AppliedFixes),
		)
	}
	return out, nil
}

// stepWithFixes runs one mutation, applying at most one bounded fix per
// category before resubmitting.
func (s *Service) stepWithFixes(ctx context.Context, run *autonomy.StateMachine, do func() (MutationResult, error), apply func(autonomy.FixCategory) bool) (MutationResult, error) {
	for {
		res, err := do()
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return MutationResult{}, err
		}
		cat, ok := classifyFix(err)
		if !ok || !run.CanRetry(cat) || !apply(cat) {
			return MutationResult{}, err
		}
		if !run.MarkApplied(cat) {
			return MutationResult{}, err
		}
		s.logger.Debug("cascade_fix",
			slog.String("run_id", run.RunID()),
			slog.String("category", string(cat)),
			slog.String("cause", redact.Error(err)),
		)
	}
}

// classifyFix maps a step failure to a corrective category. Unknown
// failures are never auto-corrected.
func classifyFix(err error) (autonomy.FixCategory, bool) {
	var pv *policy.ViolationError
	if errors.As(err, &pv) {
		for _, reason := range pv.Reasons {
			if reason == policy.ReasonBudgetRequired {
				return autonomy.FixMissingBudget, true
			}
		}
		return "", false
	}

	var api *graph.APIError
	if !errors.As(err, &api) {
		return "", false
	}
	msg := strings.ToLower(api.Message)
	switch {
	case strings.Contains(msg, "bid") && (strings.Contains(msg, "required") || strings.Contains(msg, "missing")):
		return autonomy.FixMissingBid, true
	case strings.Contains(msg, "advantage audience") || strings.Contains(msg, "targeting_automation"):
		return autonomy.FixUnsetAudienceFlag, true
	case strings.Contains(msg, "link") && (strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed")):
		return autonomy.FixMalformedCreativeURL, true
	case strings.Contains(msg, "url") && (strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed")):
		return autonomy.FixMalformedCreativeURL, true
	case strings.Contains(msg, "locale"):
		return autonomy.FixLocaleMismatch, true
	}
	return "", false
}

// repairCreativeURL normalizes the common rejected-link shapes: stray
// whitespace and a missing scheme. Returns the repaired URL and whether it
// differs from the input.
func repairCreativeURL(raw string) (string, bool) {
	fixed := strings.TrimSpace(raw)
	fixed = strings.ReplaceAll(fixed, " ", "%20")
	if fixed != "" && !strings.Contains(fixed, "://") {
		fixed = "https://" + fixed
	}
	if fixed == raw || fixed == "" {
		return raw, false
	}
	if _, err := url.Parse(fixed); err != nil {
		return raw, false
	}
	return fixed, true
}
