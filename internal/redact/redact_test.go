package redact

import (
	"errors"
	"strings"
	"testing"
)

func TestStringScrubsTokenParams(t *testing.T) {
	cases := []struct {
		name string
		in   string
		leak string
	}{
		{name: "query param", in: "GET /v21.0/me?fields=id&access_token=EAABsbCS1iHgBO7", leak: "EAABsbCS1iHgBO7"},
		{name: "appsecret proof", in: "appsecret_proof=abc123def&limit=25", leak: "abc123def"},
		{name: "bearer header", in: "Authorization: Bearer EAAG9zzor3", leak: "EAAG9zzor3"},
		{name: "client secret", in: "client_secret=shhh&grant_type=fb", leak: "shhh"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := String(tc.in)
			if strings.Contains(got, tc.leak) {
				t.Fatalf("String(%q)=%q still contains %q", tc.in, got, tc.leak)
			}
			if !strings.Contains(got, Placeholder) {
				t.Fatalf("String(%q)=%q missing placeholder", tc.in, got)
			}
		})
	}
}

func TestStringLeavesPlainTextAlone(t *testing.T) {
	in := "campaign camp_1 update rejected by policy"
	if got := String(in); got != in {
		t.Fatalf("String(%q)=%q, want unchanged", in, got)
	}
}

func TestValueScrubsNestedFields(t *testing.T) {
	in := map[string]any{
		"account_id":   "act_123",
		"access_token": "EAABsbCS1iHgBO7",
		"nested": map[string]any{
			"page_access_token": "EAAPage123",
			"status":            "ACTIVE",
		},
		"list": []any{
			map[string]any{"client_secret": "shhh"},
			"url?access_token=EAABsbCS1iHgBO7",
		},
	}

	got, ok := Value(in).(map[string]any)
	if !ok {
		t.Fatalf("Value returned %T, want map", Value(in))
	}
	if got["access_token"] != Placeholder {
		t.Fatalf("access_token=%v, want placeholder", got["access_token"])
	}
	nested := got["nested"].(map[string]any)
	if nested["page_access_token"] != Placeholder {
		t.Fatalf("page_access_token=%v, want placeholder", nested["page_access_token"])
	}
	if nested["status"] != "ACTIVE" {
		t.Fatalf("status=%v, want untouched", nested["status"])
	}
	list := got["list"].([]any)
	if list[0].(map[string]any)["client_secret"] != Placeholder {
		t.Fatalf("list secret not scrubbed: %v", list[0])
	}
	if s := list[1].(string); strings.Contains(s, "EAABsbCS1iHgBO7") {
		t.Fatalf("embedded token survived: %q", s)
	}

	// Input must not be mutated.
	if in["access_token"] != "EAABsbCS1iHgBO7" {
		t.Fatalf("input mutated: %v", in["access_token"])
	}
}

func TestValueNoTokenSurvivesAnywhere(t *testing.T) {
	const token = "EAABsbCS1iHgBO7"
	in := map[string]any{
		"access_token": token,
		"url":          "https://graph.example.com/me?access_token=" + token,
	}
	got := Value(in)
	if s := flatten(got); strings.Contains(s, token) {
		t.Fatalf("token survived redaction: %s", s)
	}
}

func TestErrorNil(t *testing.T) {
	if got := Error(nil); got != "" {
		t.Fatalf("Error(nil)=%q, want empty", got)
	}
	err := errors.New("call failed: access_token=EAAB123")
	if got := Error(err); strings.Contains(got, "EAAB123") {
		t.Fatalf("Error leaked token: %q", got)
	}
}

func TestMap(t *testing.T) {
	in := map[string]string{
		"Authorization": "Bearer EAAB123",
		"X-Request-ID":  "req_1",
	}
	got := Map(in)
	if got["Authorization"] != Placeholder {
		t.Fatalf("Authorization=%q, want placeholder", got["Authorization"])
	}
	if got["X-Request-ID"] != "req_1" {
		t.Fatalf("X-Request-ID=%q, want untouched", got["X-Request-ID"])
	}
}

func flatten(v any) string {
	var b strings.Builder
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, val := range t {
				b.WriteString(k)
				walk(val)
			}
		case []any:
			for _, val := range t {
				walk(val)
			}
		case string:
			b.WriteString(t)
		}
	}
	walk(v)
	return b.String()
}
