package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tc := range cases {
		got, err := parseLogLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseLogLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseLogLevel(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerToSink_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promogate.log")
	logger, closer, err := newLoggerToSink("info", "file", path)
	if err != nil {
		t.Fatalf("newLoggerToSink: %v", err)
	}
	logger.Info("hello", slog.String("k", "v"))
	if closer == nil {
		t.Fatalf("expected a closer for the file sink")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Fatalf("expected json log line, got %q", string(data))
	}
}

func TestNewLoggerToSink_FileRequiresPath(t *testing.T) {
	if _, _, err := newLoggerToSink("info", "file", ""); err == nil {
		t.Fatalf("expected error when file sink has no path")
	}
}

func TestNewLoggerToSink_InvalidOutput(t *testing.T) {
	if _, _, err := newLoggerToSink("info", "syslog", ""); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
}
