package config_test

import (
	"testing"

	"github.com/k1networth/syncbridge/internal/shared/config"
)

func TestDisabledPairs(t *testing.T) {
	t.Setenv("DISABLED_EVENTS", "prison-visit.created:visit, prison-visit.cancelled:visit, broken-pair")

	cfg := config.Load()
	pairs := cfg.DisabledPairs()

	if len(pairs) != 2 {
		t.Fatalf("expected 2 event types, got %d: %v", len(pairs), pairs)
	}
	if got := pairs["prison-visit.created"]; len(got) != 1 || got[0] != "visit" {
		t.Fatalf("unexpected domains for prison-visit.created: %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	if cfg.RetryMaxAttempts != 5 {
		t.Fatalf("expected default retry max attempts 5, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.ReconcilePageSize != 10 {
		t.Fatalf("expected default page size 10, got %d", cfg.ReconcilePageSize)
	}
	if cfg.EventTopic == "" {
		t.Fatalf("expected a default event topic")
	}
}
