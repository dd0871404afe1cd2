package graph

import (
	"errors"
	"strings"
)

// Known upstream rate-limit signatures. Codes 80000..80014 are the
// business-use-case throttling band; 4/17/32/613 are the legacy app, user
// and account limits; subcode 2446079 is the ad-account pacing limit.
var rateLimitCodes = map[int]struct{}{
	4:   {},
	17:  {},
	32:  {},
	613: {},
}

var rateLimitPhrases = []string{
	"request limit reached",
	"too many calls",
	"user request limit reached",
	"rate limit",
	"temporarily blocked for policies violations",
}

const rateLimitPacingSubcode = 2446079

// IsRateLimitMessage decides whether a failure should flip the account into
// cooldown and serve stale cache instead of propagating as fatal. The
// phrase matching is a deliberate heuristic kept behind this one function so
// the signal source can be swapped without touching callers.
func IsRateLimitMessage(err error) bool {
	if err == nil {
		return false
	}
	var api *APIError
	if errors.As(err, &api) {
		if api.Status == 429 {
			return true
		}
		if _, ok := rateLimitCodes[api.Code]; ok {
			return true
		}
		if api.Code >= 80000 && api.Code <= 80014 {
			return true
		}
		if api.Subcode == rateLimitPacingSubcode {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range rateLimitPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
