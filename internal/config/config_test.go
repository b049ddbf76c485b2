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
		t.Fatalf("defaults should load without a config file: %v", err)
	}

	if cfg.Scraping.BaseURL != "https://www.amazon.sa" {
		t.Fatalf("unexpected base url %q", cfg.Scraping.BaseURL)
	}
	if cfg.Deals.MinDiscountPct != 20 {
		t.Fatalf("expected default min discount 20, got %v", cfg.Deals.MinDiscountPct)
	}
	if cfg.Scheduling.PeakInterval != 15*time.Minute {
		t.Fatalf("expected 15m peak interval, got %s", cfg.Scheduling.PeakInterval)
	}
	if cfg.Scheduling.OffPeakInterval != 30*time.Minute {
		t.Fatalf("expected 30m off-peak interval, got %s", cfg.Scheduling.OffPeakInterval)
	}
	if cfg.Telegram.MaxPerDestination != 5 {
		t.Fatalf("expected per-destination cap 5, got %d", cfg.Telegram.MaxPerDestination)
	}
	if cfg.Telegram.BroadcastMinScore != 6.0 {
		t.Fatalf("expected broadcast floor 6.0, got %v", cfg.Telegram.BroadcastMinScore)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
scraping:
  base_url: https://catalog.test
  timeout: 10s
deals:
  min_discount_percentage: 25
scheduling:
  peak_start_hour: 17
  peak_interval: 5m
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Scraping.BaseURL != "https://catalog.test" {
		t.Fatalf("file value not applied, got %q", cfg.Scraping.BaseURL)
	}
	if cfg.Scraping.Timeout != 10*time.Second {
		t.Fatalf("duration not decoded, got %s", cfg.Scraping.Timeout)
	}
	if cfg.Deals.MinDiscountPct != 25 {
		t.Fatalf("expected min discount 25, got %v", cfg.Deals.MinDiscountPct)
	}
	if cfg.Scheduling.PeakStartHour != 17 {
		t.Fatalf("expected peak start 17, got %d", cfg.Scheduling.PeakStartHour)
	}
	// Unset keys keep their defaults.
	if cfg.Scheduling.OffPeakInterval != 30*time.Minute {
		t.Fatalf("default off-peak interval lost, got %s", cfg.Scheduling.OffPeakInterval)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name  string
		patch func(*Config)
	}{
		{"missing base url", func(c *Config) { c.Scraping.BaseURL = "" }},
		{"zero retries", func(c *Config) { c.Scraping.MaxRetries = 0 }},
		{"inverted pacing window", func(c *Config) { c.Scraping.MinDelay = time.Hour; c.Scraping.MaxDelay = time.Second }},
		{"discount out of range", func(c *Config) { c.Deals.MinDiscountPct = 150 }},
		{"inverted price band", func(c *Config) { c.Deals.MinPrice = 100; c.Deals.MaxPrice = 50 }},
		{"peak hour out of range", func(c *Config) { c.Scheduling.PeakStartHour = 24 }},
		{"zero workers", func(c *Config) { c.Scheduling.MaxWorkers = 0 }},
		{"telegram enabled without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "" }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.patch(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
