package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	if !New("debug", "text").Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug enabled")
	}
	if New("error", "text").Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info disabled at error level")
	}
	if !New("", "text").Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info enabled by default")
	}
}

func TestLAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info", "json")
	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-42")
	L(ctx).Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if line["request_id"] != "req-42" {
		t.Fatalf("expected request_id, got %#v", line)
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info+2":  slog.LevelInfo + 2,
		"debug-4": slog.LevelDebug - 4,
	}
	for raw, want := range cases {
		got, err := ParseLevel(raw)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWithScopesLoggerAndKeepsRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithRequestID(context.Background(), "req-7")
	ctx = WithLogger(ctx, NewWithWriter(&buf, "info", "json"))
	ctx = With(ctx, "operation", "escrow.release")
	L(ctx).Info("released")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if line["operation"] != "escrow.release" || line["request_id"] != "req-7" || line["service"] != "escrowledger" {
		t.Fatalf("unexpected attributes: %#v", line)
	}
	if RequestID(ctx) != "req-7" {
		t.Fatalf("request id lost: %q", RequestID(ctx))
	}
}
