package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 2, cfg.Session.PoolSize)
	require.True(t, cfg.Session.Headless)
	require.True(t, cfg.Session.ProbeEnabled)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.True(t, cfg.Snapshot.Enabled)
	require.NotEmpty(t, cfg.Snapshot.Dir)

	// every page kind gets a template and readiness predicate
	for _, kind := range hltv.PageKinds {
		page, ok := cfg.Pages[string(kind)]
		require.True(t, ok, kind)
		require.NotEmpty(t, page.URLTemplate, kind)
		require.NotEmpty(t, page.ReadySelector, kind)
	}
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pool size", func(c *Config) { c.Session.PoolSize = 0 }},
		{"zero nav timeout", func(c *Config) { c.Session.NavTimeoutSec = 0 }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"unknown page kind", func(c *Config) { c.Pages["match-page"] = PageConfig{URLTemplate: "https://x/%d"} }},
		{"missing page kind", func(c *Config) { delete(c.Pages, string(hltv.PageEventOverview)) }},
		{"empty url template", func(c *Config) {
			page := c.Pages[string(hltv.PageEventOverview)]
			page.URLTemplate = ""
			c.Pages[string(hltv.PageEventOverview)] = page
		}},
		{"snapshots without target", func(c *Config) {
			c.Snapshot.Enabled = true
			c.Snapshot.Dir = ""
			c.Snapshot.GCSBucket = ""
		}},
		{"server without port", func(c *Config) {
			c.Server.Enabled = true
			c.Server.Port = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Positive(t, cfg.Session.NavTimeout())
	require.Positive(t, cfg.Session.MinNavDelay())
	require.Positive(t, cfg.Session.ProbeTimeout())
	require.Positive(t, cfg.Retry.BackoffInitial())
	require.Greater(t, cfg.Retry.BackoffMax(), cfg.Retry.BackoffInitial())
}
