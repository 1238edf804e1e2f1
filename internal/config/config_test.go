package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults failed: %v", err)
	}

	if cfg.Coinbase.BaseURL != "https://api.exchange.coinbase.com" {
		t.Fatalf("coinbase base url default wrong: %s", cfg.Coinbase.BaseURL)
	}
	if cfg.Coinbase.MaxCandles != 300 {
		t.Fatalf("max candles default wrong: %d", cfg.Coinbase.MaxCandles)
	}
	if cfg.Detector.WindowDays != 14 {
		t.Fatalf("window days default wrong: %d", cfg.Detector.WindowDays)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("scheduler interval default wrong: %s", cfg.Scheduler.Interval)
	}
	if len(cfg.Detector.QuoteCurrencies) != 2 {
		t.Fatalf("quote currencies default wrong: %v", cfg.Detector.QuoteCurrencies)
	}
	if cfg.Opportunity.FlatFeeEUR != 1.5 {
		t.Fatalf("flat fee default wrong: %f", cfg.Opportunity.FlatFeeEUR)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("detector:\n  window_days: 7\nscheduler:\n  interval: 1m\nstate:\n  path: /tmp/custom.json\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Detector.WindowDays != 7 {
		t.Fatalf("window days not overridden: %d", cfg.Detector.WindowDays)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("interval not overridden: %s", cfg.Scheduler.Interval)
	}
	if cfg.State.Path != "/tmp/custom.json" {
		t.Fatalf("state path not overridden: %s", cfg.State.Path)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults failed: %v", err)
	}

	cfg.Detector.WindowDays = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero window days should fail validation")
	}

	cfg.Detector.WindowDays = 14
	cfg.Mail.Enabled = true
	cfg.Mail.Host = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled mail without host should fail validation")
	}
}
