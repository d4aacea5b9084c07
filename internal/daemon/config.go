// Package daemon manages the Study Addict server lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata" // [rules] timezone must resolve on hosts without zoneinfo

	"github.com/BurntSushi/toml"

	"github.com/studyaddict/studyaddict/internal/app/cloudsync"
	"github.com/studyaddict/studyaddict/internal/app/progression"
	"github.com/studyaddict/studyaddict/internal/domain"
	"github.com/studyaddict/studyaddict/internal/infra/natsbus"
	"github.com/studyaddict/studyaddict/internal/infra/postgres"
	"github.com/studyaddict/studyaddict/internal/infra/redisdoc"
	"github.com/studyaddict/studyaddict/internal/logging"
)

// Config holds all daemon configuration.
type Config struct {
	Identity  IdentityConfig  `toml:"identity"`
	API       APIConfig       `toml:"api"`
	Sync      SyncConfig      `toml:"sync"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	NATS      NATSConfig      `toml:"nats"`
	Rules     RulesConfig     `toml:"rules"`
	Logging   LoggingConfig   `toml:"logging"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// IdentityConfig names the CLI user. An empty UserID studies as a guest.
type IdentityConfig struct {
	UserID string `toml:"user_id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	JWTSecret   string   `toml:"jwt_secret"`
}

// SyncConfig selects the remote document store and the save queue policy.
type SyncConfig struct {
	Backend      string `toml:"backend"` // memory, sqlite, redis or postgres
	Coalesce     bool   `toml:"coalesce"`
	Capacity     int    `toml:"capacity"`
	MinInterval  string `toml:"min_interval"`
	WriteTimeout string `toml:"write_timeout"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN   string `toml:"dsn"`
	Table string `toml:"table"`
}

// NATSConfig controls event publishing to NATS.
type NATSConfig struct {
	Enabled       bool   `toml:"enabled"`
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// RulesConfig tunes the progression curve and the day boundary.
type RulesConfig struct {
	BaseXPNeeded        int64   `toml:"base_xp_needed"`
	LevelGrowth         float64 `toml:"level_growth"`
	MinuteScale         float64 `toml:"minute_scale"`
	PrestigeUnlockLevel int     `toml:"prestige_unlock_level"`
	PrestigeStep        float64 `toml:"prestige_step"`
	Timezone            string  `toml:"timezone"` // IANA name; empty = local
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// TelemetryConfig controls the metrics endpoint.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// Backend names accepted by [sync] backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultConfig returns a configuration that runs entirely on local storage.
func DefaultConfig() Config {
	homeDir := studyaddictHome()
	rules := progression.DefaultRules()
	policy := cloudsync.DefaultPolicy()
	rd := redisdoc.DefaultConfig()
	pg := postgres.DefaultConfig()
	nc := natsbus.DefaultConfig()

	return Config{
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        8787,
			CORSOrigins: []string{"*"},
		},
		Sync: SyncConfig{
			Backend:      BackendSQLite,
			Coalesce:     policy.Coalesce,
			Capacity:     policy.Capacity,
			WriteTimeout: policy.WriteTimeout.String(),
		},
		Redis: RedisConfig{
			Addr:      rd.Addr,
			KeyPrefix: rd.KeyPrefix,
		},
		Postgres: PostgresConfig{
			Table: pg.Table,
		},
		NATS: NATSConfig{
			URL:           nc.URL,
			SubjectPrefix: nc.SubjectPrefix,
		},
		Rules: RulesConfig{
			BaseXPNeeded:        rules.BaseXPNeeded,
			LevelGrowth:         rules.LevelGrowth,
			MinuteScale:         rules.MinuteScale,
			PrestigeUnlockLevel: rules.PrestigeUnlockLevel,
			PrestigeStep:        rules.PrestigeStep,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(homeDir, "studyaddict.log"),
			MaxSizeMB: 50,
			MaxFiles:  5,
		},
		Telemetry: TelemetryConfig{
			Prometheus:     true,
			HealthInterval: "60s",
		},
	}
}

// LoadConfig reads config from $STUDYADDICT_HOME/config.toml, falling back
// to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $STUDYADDICT_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects settings that cannot be wired.
func (c Config) Validate() error {
	switch c.Sync.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("sync backend postgres needs [postgres] dsn")
		}
	default:
		return fmt.Errorf("unknown sync backend %q", c.Sync.Backend)
	}
	if c.Rules.Timezone != "" {
		if _, err := time.LoadLocation(c.Rules.Timezone); err != nil {
			return fmt.Errorf("rules timezone: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ─── Conversions ────────────────────────────────────────────────────────────

// ProgressionRules returns the configured curve. Unset values keep their
// defaults.
func (c Config) ProgressionRules() progression.Rules {
	r := progression.DefaultRules()
	if c.Rules.BaseXPNeeded > 0 {
		r.BaseXPNeeded = c.Rules.BaseXPNeeded
	}
	if c.Rules.LevelGrowth > 1 {
		r.LevelGrowth = c.Rules.LevelGrowth
	}
	if c.Rules.MinuteScale > 0 {
		r.MinuteScale = c.Rules.MinuteScale
	}
	if c.Rules.PrestigeUnlockLevel > 0 {
		r.PrestigeUnlockLevel = c.Rules.PrestigeUnlockLevel
	}
	if c.Rules.PrestigeStep > 0 {
		r.PrestigeStep = c.Rules.PrestigeStep
	}
	return r
}

// Clock returns the system clock in the configured timezone.
func (c Config) Clock() domain.Clock {
	if c.Rules.Timezone == "" {
		return domain.SystemClock{}
	}
	loc, err := time.LoadLocation(c.Rules.Timezone)
	if err != nil {
		return domain.SystemClock{}
	}
	return domain.SystemClock{Location: loc}
}

// QueuePolicy returns the save queue policy.
func (c Config) QueuePolicy() cloudsync.Policy {
	def := cloudsync.DefaultPolicy()
	return cloudsync.Policy{
		Coalesce:     c.Sync.Coalesce,
		Capacity:     c.Sync.Capacity,
		MinInterval:  parseDuration(c.Sync.MinInterval, 0),
		WriteTimeout: parseDuration(c.Sync.WriteTimeout, def.WriteTimeout),
	}
}

// RedisStoreConfig returns the redis backend settings.
func (c Config) RedisStoreConfig() redisdoc.Config {
	rc := redisdoc.DefaultConfig()
	if c.Redis.Addr != "" {
		rc.Addr = c.Redis.Addr
	}
	rc.Password = c.Redis.Password
	rc.DB = c.Redis.DB
	if c.Redis.KeyPrefix != "" {
		rc.KeyPrefix = c.Redis.KeyPrefix
	}
	return rc
}

// PostgresStoreConfig returns the postgres backend settings.
func (c Config) PostgresStoreConfig() postgres.Config {
	pc := postgres.DefaultConfig()
	pc.DSN = c.Postgres.DSN
	if c.Postgres.Table != "" {
		pc.Table = c.Postgres.Table
	}
	return pc
}

// NATSPublisherConfig returns the NATS publisher settings.
func (c Config) NATSPublisherConfig() natsbus.Config {
	nc := natsbus.DefaultConfig()
	if c.NATS.URL != "" {
		nc.URL = c.NATS.URL
	}
	if c.NATS.SubjectPrefix != "" {
		nc.SubjectPrefix = c.NATS.SubjectPrefix
	}
	return nc
}

// LoggerConfig returns the logging settings.
func (c Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		MaxSizeMB: c.Logging.MaxSizeMB,
		MaxFiles:  c.Logging.MaxFiles,
	}
}

// ─── Paths ──────────────────────────────────────────────────────────────────

// ConfigPath returns the location of config.toml.
func ConfigPath() string {
	return filepath.Join(studyaddictHome(), "config.toml")
}

// studyaddictHome returns the data directory.
func studyaddictHome() string {
	if env := os.Getenv("STUDYADDICT_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".studyaddict")
}

// Home is exported for use by other packages.
func Home() string {
	return studyaddictHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
