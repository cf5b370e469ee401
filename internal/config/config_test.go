package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Promotion.FetchThreshold() != 10*time.Minute {
		t.Fatalf("unexpected fetch threshold: %v", cfg.Promotion.FetchThreshold())
	}
	if cfg.Promotion.RefreshInterval() != 24*time.Hour {
		t.Fatalf("unexpected refresh interval: %v", cfg.Promotion.RefreshInterval())
	}
	if cfg.Promotion.RetryDelay() != 5*time.Second {
		t.Fatalf("unexpected retry delay: %v", cfg.Promotion.RetryDelay())
	}
	if cfg.Promotion.TokenValue != "0.25" {
		t.Fatalf("unexpected token value: %s", cfg.Promotion.TokenValue)
	}
	if cfg.Queue.Queues["critical"] != 5 {
		t.Fatalf("unexpected queues: %+v", cfg.Queue.Queues)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsMissingIssuer(t *testing.T) {
	cfg := Defaults()
	cfg.Issuer.BaseURL = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
