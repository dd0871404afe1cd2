package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCmd_Default(t *testing.T) {
	restore := setVersionMetadataForTest("v0.3.1", "deadbee", "2026-08-30T00:00:00Z")
	defer restore()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := runVersionCmd(nil, stdout, stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if got := strings.TrimSpace(stdout.String()); got != "v0.3.1" {
		t.Fatalf("expected version output %q, got %q", "v0.3.1", got)
	}
	if got := strings.TrimSpace(stderr.String()); got != "" {
		t.Fatalf("expected empty stderr, got %q", got)
	}
}

func TestVersionCmd_Long(t *testing.T) {
	restore := setVersionMetadataForTest("v0.3.1", "deadbee", "2026-08-30T00:00:00Z")
	defer restore()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := runVersionCmd([]string{"--long"}, stdout, stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	got := strings.TrimSpace(stdout.String())
	want := "promogate v0.3.1 (commit=deadbee, build_date=2026-08-30T00:00:00Z)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	restore := setVersionMetadataForTest("v0.3.1", "deadbee", "2026-08-30T00:00:00Z")
	defer restore()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := runVersionCmd([]string{"--json"}, stdout, stderr)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	got := strings.TrimSpace(stdout.String())
	for _, frag := range []string{`"version":"v0.3.1"`, `"commit":"deadbee"`, `"build_date":"2026-08-30T00:00:00Z"`} {
		if !strings.Contains(got, frag) {
			t.Fatalf("expected %s in json output, got %q", frag, got)
		}
	}
}

func TestVersionCmd_BadArgs(t *testing.T) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := runVersionCmd([]string{"positional"}, stdout, stderr)
	if code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if got := stderr.String(); !strings.Contains(got, "unexpected positional arguments") {
		t.Fatalf("expected positional argument error, got %q", got)
	}
}

func setVersionMetadataForTest(v, c, d string) func() {
	origVersion := version
	origCommit := commit
	origBuildDate := buildDate
	version = v
	commit = c
	buildDate = d
	return func() {
		version = origVersion
		commit = origCommit
		buildDate = origBuildDate
	}
}
