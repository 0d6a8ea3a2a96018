package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"mealsnap/pkg/config"
	"mealsnap/pkg/provider/types"
)

func unsetLoggingEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MEALSNAP_LOG_FORMAT", "")
	t.Setenv("MEALSNAP_LOG_LEVEL", "")
	t.Setenv("MEALSNAP_LOG_ADD_SOURCE", "")
}

func TestLoggerJSONEntryShape(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "engine").Info("Analysis started", "provider", "openai", "ok", true)

	line := strings.TrimSpace(out.String())
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Level != "info" {
		t.Fatalf("level = %q, want %q", entry.Level, "info")
	}
	if entry.Message != "Analysis started" {
		t.Fatalf("message = %q, want %q", entry.Message, "Analysis started")
	}
	if entry.Component != "engine" {
		t.Fatalf("component = %q, want %q", entry.Component, "engine")
	}
	if entry.Timestamp == "" {
		t.Fatal("expected timestamp")
	}
	if entry.Provider != "openai" {
		t.Fatalf("provider = %q, want %q", entry.Provider, "openai")
	}
	if got := entry.Fields["ok"]; got != true {
		t.Fatalf("fields.ok = %v, want true", got)
	}
}

func TestLoggerPromotesAnalysisKeys(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.With("component", "provider.gemini").Info("provider request completed",
		"provider", types.ProviderGemini,
		"request_id", "req-123",
		"duration_ms", int64(842),
		"attempt", 2,
	)

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Provider != "gemini" {
		t.Fatalf("provider = %q, want %q", entry.Provider, "gemini")
	}
	if entry.RequestID != "req-123" {
		t.Fatalf("request_id = %q, want %q", entry.RequestID, "req-123")
	}
	if entry.DurationMS != 842 {
		t.Fatalf("duration_ms = %d, want 842", entry.DurationMS)
	}
	if got := entry.Fields["attempt"]; got != float64(2) {
		t.Fatalf("fields.attempt = %v, want 2", got)
	}
	for _, key := range []string{"provider", "request_id", "duration_ms", "component"} {
		if _, ok := entry.Fields[key]; ok {
			t.Fatalf("promoted key %q must not repeat in fields", key)
		}
	}
}

func TestLoggerGroupedKeysStayInFields(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "info"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.WithGroup("retry").Info("Attempt failed", "provider", "openai", "attempt", 1)

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}

	if entry.Provider != "" {
		t.Fatalf("grouped provider must not promote, got %q", entry.Provider)
	}
	if got := entry.Fields["retry.provider"]; got != "openai" {
		t.Fatalf("fields[retry.provider] = %v, want %q", got, "openai")
	}
	if got := entry.Fields["retry.attempt"]; got != float64(1) {
		t.Fatalf("fields[retry.attempt] = %v, want 1", got)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "json", Level: "error"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Ignored")
	if got := strings.TrimSpace(out.String()); got != "" {
		t.Fatalf("expected no output for info, got %q", got)
	}

	log.Error("Kept")
	if got := strings.TrimSpace(out.String()); got == "" {
		t.Fatal("expected output for error")
	}
}

func TestLoggerRejectsUnknownFormat(t *testing.T) {
	unsetLoggingEnv(t)

	var out bytes.Buffer
	if _, err := newWithWriter(config.LoggingConfig{Format: "xml"}, &out); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoggerEnvFormatOverride(t *testing.T) {
	unsetLoggingEnv(t)
	t.Setenv("MEALSNAP_LOG_FORMAT", "json")

	var out bytes.Buffer
	log, err := newWithWriter(config.LoggingConfig{Format: "text"}, &out)
	if err != nil {
		t.Fatalf("newWithWriter error: %v", err)
	}

	log.Info("Event")

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry); err != nil {
		t.Fatalf("expected JSON output under env override: %v", err)
	}
}
