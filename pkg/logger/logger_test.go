package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerEmitsServiceAndFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "entitlements", Output: &buf})

	ctx := logg.WithUserID(context.Background(), "user-123")
	ctx = logg.WithExperiment(ctx, "variant_limits_v1")
	logg.Info(ctx, "decision.allowed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if line["service"] != "entitlements" {
		t.Fatalf("expected service field, got %v", line["service"])
	}
	if line["user_id"] != "user-123" {
		t.Fatalf("expected user_id field, got %v", line["user_id"])
	}
	if line["experiment"] != "variant_limits_v1" {
		t.Fatalf("expected experiment field, got %v", line["experiment"])
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info for empty, got %s", lvl)
	}
	if lvl := ParseLevel("garbage"); lvl != zerolog.InfoLevel {
		t.Fatalf("expected info for garbage, got %s", lvl)
	}
	if lvl := ParseLevel("debug"); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %s", lvl)
	}
}

func TestContextFieldsDoNotLeakBetweenBranches(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "entitlements", Output: &buf})

	base := context.Background()
	_ = logg.WithUserID(base, "user-a")

	logg.Info(base, "no fields expected")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if _, ok := line["user_id"]; ok {
		t.Fatal("user_id must not leak into the parent context")
	}
}
