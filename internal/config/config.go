// Package config loads and validates sync engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Session  SessionConfig         `mapstructure:"session"`
	Pages    map[string]PageConfig `mapstructure:"pages"`
	Retry    RetryConfig           `mapstructure:"retry"`
	DB       DBConfig              `mapstructure:"db"`
	Snapshot SnapshotConfig        `mapstructure:"snapshot"`
	Sync     SyncConfig            `mapstructure:"sync"`
	Server   ServerConfig          `mapstructure:"server"`
	Logging  LoggingConfig         `mapstructure:"logging"`
}

// SessionConfig governs the browser session pool.
type SessionConfig struct {
	PoolSize        int    `mapstructure:"pool_size"`
	UserAgent       string `mapstructure:"user_agent"`
	Headless        bool   `mapstructure:"headless"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	MinNavDelayMs   int    `mapstructure:"min_nav_delay_ms"`
	ProbeEnabled    bool   `mapstructure:"probe_enabled"`
	ProbeTimeoutSec int    `mapstructure:"probe_timeout_seconds"`
}

// PageConfig supplies, per page kind, the URL template and the
// content-readiness predicate required by the session layer.
type PageConfig struct {
	URLTemplate   string `mapstructure:"url_template"`
	ReadySelector string `mapstructure:"ready_selector"`
}

// RetryConfig controls the load retry ceiling and backoff schedule.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	ConnLifetime int    `mapstructure:"conn_lifetime_seconds"`
}

// SnapshotConfig selects where per-entity snapshot artifacts go.
type SnapshotConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// SyncConfig bounds orchestrator work and concurrency.
type SyncConfig struct {
	EventWorkers  int `mapstructure:"event_workers"`
	TeamWorkers   int `mapstructure:"team_workers"`
	PlayerWorkers int `mapstructure:"player_workers"`
	MaxEvents     int `mapstructure:"max_events"`
	MaxTeams      int `mapstructure:"max_teams"`
	MaxPlayers    int `mapstructure:"max_players"`
}

// ServerConfig controls the ops HTTP surface.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HLTVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	const defaultUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	v.SetDefault("session.pool_size", 2)
	v.SetDefault("session.user_agent", defaultUA)
	v.SetDefault("session.headless", true)
	v.SetDefault("session.nav_timeout_seconds", 25)
	v.SetDefault("session.min_nav_delay_ms", 2000)
	v.SetDefault("session.probe_enabled", true)
	v.SetDefault("session.probe_timeout_seconds", 15)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 1000)
	v.SetDefault("retry.backoff_max_ms", 30000)

	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.dir", "data/snapshots")

	v.SetDefault("sync.event_workers", 2)
	v.SetDefault("sync.team_workers", 2)
	v.SetDefault("sync.player_workers", 2)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.development", true)

	v.SetDefault("pages", map[string]map[string]string{
		string(hltv.PageEventList): {
			"url_template":   "https://www.hltv.org/events",
			"ready_selector": ".events-holder",
		},
		string(hltv.PageEventOverview): {
			"url_template":   "https://www.hltv.org/events/%d/event",
			"ready_selector": ".event-hub-title",
		},
		string(hltv.PageEventResults): {
			"url_template":   "https://www.hltv.org/events/%d/event",
			"ready_selector": ".placements",
		},
		string(hltv.PageEventStats): {
			"url_template":   "https://www.hltv.org/stats/players?event=%d",
			"ready_selector": ".stats-table",
		},
		string(hltv.PageTeamRanking): {
			"url_template":   "https://www.hltv.org/ranking/teams",
			"ready_selector": ".ranked-team",
		},
		string(hltv.PageTeamProfile): {
			"url_template":   "https://www.hltv.org/team/%d/team",
			"ready_selector": ".teamProfile",
		},
		string(hltv.PagePlayerList): {
			"url_template":   "https://www.hltv.org/stats/players",
			"ready_selector": ".stats-table",
		},
		string(hltv.PagePlayerProfile): {
			"url_template":   "https://www.hltv.org/stats/players/%d/player",
			"ready_selector": ".stats-row",
		},
	})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Session.PoolSize <= 0 {
		return fmt.Errorf("session.pool_size must be > 0")
	}
	if c.Session.NavTimeoutSec <= 0 {
		return fmt.Errorf("session.nav_timeout_seconds must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	for name, page := range c.Pages {
		if !knownPageKind(name) {
			return fmt.Errorf("pages.%s is not a known page kind", name)
		}
		if page.URLTemplate == "" {
			return fmt.Errorf("pages.%s.url_template is required", name)
		}
	}
	for _, kind := range hltv.PageKinds {
		if _, ok := c.Pages[string(kind)]; !ok {
			return fmt.Errorf("pages.%s is missing", kind)
		}
	}
	if c.Snapshot.Enabled && c.Snapshot.Dir == "" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.dir or snapshot.gcs_bucket is required when snapshots are enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the ops server is enabled")
	}
	return nil
}

func knownPageKind(name string) bool {
	for _, kind := range hltv.PageKinds {
		if string(kind) == name {
			return true
		}
	}
	return false
}

// NavTimeout returns the navigation timeout as a duration.
func (c SessionConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// MinNavDelay returns the per-session navigation floor as a duration.
func (c SessionConfig) MinNavDelay() time.Duration {
	return time.Duration(c.MinNavDelayMs) * time.Millisecond
}

// ProbeTimeout returns the probe request timeout as a duration.
func (c SessionConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}

// BackoffInitial returns the first backoff delay.
func (c RetryConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the backoff cap.
func (c RetryConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}
