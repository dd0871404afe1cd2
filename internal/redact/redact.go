// Package redact scrubs token-shaped values from anything that is about to
// leave the gateway as a log line or an error payload.
package redact

import (
	"regexp"
	"strings"
)

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// sensitiveKeys are field names whose values are always replaced, regardless
// of what the value looks like.
var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"accesstoken":   {},
	"token":         {},
	"secret":        {},
	"app_secret":    {},
	"appsecret":     {},
	"client_secret": {},
	"authorization": {},
	"password":      {},
	"api_key":       {},
	"apikey":        {},
	"bearer":        {},
}

var (
	// query/form style: access_token=EAAB... or appsecret_proof=...
	tokenParamPattern = regexp.MustCompile(`(?i)((?:access_token|appsecret_proof|client_secret|api_key)=)[^&\s"']+`)
	// header style: Bearer EAAB...
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._~+/-]+=*`)
)

// String replaces token-like substrings in s with the placeholder.
func String(s string) string {
	s = tokenParamPattern.ReplaceAllString(s, "${1}"+Placeholder)
	s = bearerPattern.ReplaceAllString(s, "${1}"+Placeholder)
	return s
}

// Error returns the redacted message of err, or "" for nil.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Value walks v and returns a copy with sensitive fields replaced. Maps and
// slices are copied; all other values pass through (strings additionally get
// substring scrubbing). The input is never mutated.
func Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = Placeholder
				continue
			}
			out[k] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Value(val)
		}
		return out
	case string:
		return String(t)
	default:
		return v
	}
}

// Map is a convenience wrapper for string-keyed string maps (headers, query
// parameters).
func Map(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = String(v)
	}
	return out
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if _, ok := sensitiveKeys[k]; ok {
		return true
	}
	// Compound names such as page_access_token or system_user_token.
	return strings.HasSuffix(k, "_token") || strings.HasSuffix(k, "_secret")
}
