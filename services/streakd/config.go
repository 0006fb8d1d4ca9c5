package streakd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"handstreak/config"
	"handstreak/native/streak"
	"handstreak/observability/logging"
)

// Config captures the runtime configuration for streakd.
type Config struct {
	ListenAddress   string               `yaml:"listen" toml:"listen"`
	Env             string               `yaml:"env" toml:"env"`
	Engine          streak.Params        `yaml:"engine" toml:"engine"`
	ProposalTTL     config.Duration      `yaml:"proposal_ttl" toml:"proposal_ttl"`
	ShutdownTimeout config.Duration      `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	Store           StoreConfig          `yaml:"store" toml:"store"`
	Journal         JournalConfig        `yaml:"journal" toml:"journal"`
	Export          ExportConfig         `yaml:"export" toml:"export"`
	Inbox           InboxSettings        `yaml:"inbox" toml:"inbox"`
	RateLimits      map[string]RateLimit `yaml:"rate_limits" toml:"rate_limits"`
	Log             logging.Options      `yaml:"log" toml:"log"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// JournalConfig locates the run journal. An empty path keeps the journal in
// memory.
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ExportConfig enables report export when Dir is set.
type ExportConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// InboxSettings enables the daily inbox sweep when Dir is set.
type InboxSettings struct {
	Dir      string `yaml:"dir" toml:"dir"`
	RunAt    string `yaml:"run_at" toml:"run_at"`
	Timezone string `yaml:"timezone" toml:"timezone"`
}

// Location resolves the configured timezone.
func (s InboxSettings) Location() (*time.Location, error) {
	if strings.TrimSpace(s.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// LoadConfig reads configuration from path. An empty path yields the
// defaults. Environment overrides are applied after the file.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		if err := config.Load(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if env := strings.TrimSpace(os.Getenv("STREAKD_ENV")); env != "" {
		cfg.Env = env
	}
	if raw := strings.TrimSpace(os.Getenv("STREAKD_DEFAULT_HANDS_THRESHOLD")); raw != "" {
		threshold, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || threshold <= 0 {
			return fmt.Errorf("STREAKD_DEFAULT_HANDS_THRESHOLD must be a positive integer, got %q", raw)
		}
		cfg.Engine.ActivityThreshold = threshold
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	cfg.Engine = cfg.Engine.Normalize()
	if cfg.ProposalTTL.Duration == 0 {
		cfg.ProposalTTL.Duration = streak.DefaultProposalTTL
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = "sqlite"
	case "postgresql":
		cfg.Store.Driver = "postgres"
	}
	if cfg.Inbox.RunAt == "" {
		cfg.Inbox.RunAt = "06:00"
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimit{
			RouteGroupRuns:  {RequestsPerMinute: 6, Burst: 2},
			RouteGroupAdmin: {RequestsPerMinute: 60, Burst: 10},
			RouteGroupRead:  {RequestsPerMinute: 600, Burst: 60},
		}
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store driver must be sqlite or postgres, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && strings.TrimSpace(cfg.Store.DSN) == "" {
		return fmt.Errorf("store dsn must be configured for postgres")
	}
	if cfg.ProposalTTL.Duration < 0 {
		return fmt.Errorf("proposal_ttl must not be negative")
	}
	if strings.TrimSpace(cfg.Inbox.Dir) != "" {
		if _, _, err := ParseClock(cfg.Inbox.RunAt); err != nil {
			return err
		}
		if _, err := cfg.Inbox.Location(); err != nil {
			return fmt.Errorf("inbox timezone: %w", err)
		}
	}
	for group, limit := range cfg.RateLimits {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate limit %q must not be negative", group)
		}
	}
	return nil
}
