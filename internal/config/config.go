package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
	SessionStoreMemory   = "memory"

	minSessionSecretLen = 32
)

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type DiscordConfig struct {
	Token             string `yaml:"token"`
	MarkerRoleName    string `yaml:"marker_role"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

type AdminConfig struct {
	Password string `yaml:"password"`
}

type SessionConfig struct {
	Secret       string        `yaml:"secret"`
	TTL          time.Duration `yaml:"ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
	// Store is database, redis or memory. It defaults to redis when a
	// Redis address is configured and to database otherwise.
	Store string `yaml:"store"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OTELConfig struct {
	MetricsEnabled        bool          `yaml:"metrics_enabled"`
	TracingEnabled        bool          `yaml:"tracing_enabled"`
	LogsEnabled           bool          `yaml:"logs_enabled"`
	Endpoint              string        `yaml:"endpoint"`
	Insecure              bool          `yaml:"insecure"`
	ServiceName           string        `yaml:"service_name"`
	Environment           string        `yaml:"environment"`
	MetricsExportInterval time.Duration `yaml:"metrics_export_interval"`
}

type Config struct {
	Database        DatabaseConfig `yaml:"database"`
	Discord         DiscordConfig  `yaml:"discord"`
	HTTP            HTTPConfig     `yaml:"http"`
	Admin           AdminConfig    `yaml:"admin"`
	Session         SessionConfig  `yaml:"session"`
	Redis           RedisConfig    `yaml:"redis"`
	OTEL            OTELConfig     `yaml:"otel"`
	LogLevel        string         `yaml:"log_level"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
}

// Requirement selects which secrets a command needs; migrate only needs the
// database, serve needs everything it is going to run.
type Requirement uint8

const (
	RequireDatabase Requirement = 1 << iota
	RequireWeb
	RequireDiscord
)

// Load reads an optional YAML file, applies environment overrides and
// defaults. A missing file is not an error. Call Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Discord.Token, "DISCORD_BOT_TOKEN")
	setString(&cfg.Discord.MarkerRoleName, "MARKER_ROLE_NAME")
	if v, ok := os.LookupEnv("ROLE_RECONCILE_SCHEDULE"); ok {
		cfg.Discord.ReconcileSchedule = strings.TrimSpace(v)
		if cfg.Discord.ReconcileSchedule == "" {
			cfg.Discord.ReconcileSchedule = "off"
		}
	}
	setString(&cfg.HTTP.Addr, "HTTP_ADDR")
	setString(&cfg.HTTP.StaticDir, "STATIC_DIR")
	setString(&cfg.Admin.Password, "ADMIN_PASSWORD")
	setString(&cfg.Session.Secret, "SESSION_SECRET")
	setString(&cfg.Session.Store, "SESSION_STORE")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setString(&cfg.OTEL.Environment, "OTEL_ENVIRONMENT")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	var errs []error
	errs = append(errs,
		setDuration(&cfg.Session.TTL, "SESSION_TTL"),
		setDuration(&cfg.OTEL.MetricsExportInterval, "OTEL_METRICS_EXPORT_INTERVAL"),
		setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),
		setBool(&cfg.Session.CookieSecure, "SESSION_COOKIE_SECURE"),
		setBool(&cfg.OTEL.MetricsEnabled, "OTEL_METRICS_ENABLED"),
		setBool(&cfg.OTEL.TracingEnabled, "OTEL_TRACING_ENABLED"),
		setBool(&cfg.OTEL.LogsEnabled, "OTEL_LOGS_ENABLED"),
		setBool(&cfg.OTEL.Insecure, "OTEL_EXPORTER_OTLP_INSECURE"),
		setInt(&cfg.Redis.DB, "REDIS_DB"),
	)
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":5000"
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = SessionStoreDatabase
		if cfg.Redis.Addr != "" {
			cfg.Session.Store = SessionStoreRedis
		}
	}
	cfg.Session.Store = strings.ToLower(cfg.Session.Store)
	if cfg.Discord.MarkerRoleName == "" {
		cfg.Discord.MarkerRoleName = "Licensed User"
	}
	switch cfg.Discord.ReconcileSchedule {
	case "":
		cfg.Discord.ReconcileSchedule = "@every 15m"
	case "off":
		cfg.Discord.ReconcileSchedule = ""
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "licensebot"
	}
	if cfg.OTEL.Environment == "" {
		cfg.OTEL.Environment = "development"
	}
	if cfg.OTEL.Endpoint == "" {
		cfg.OTEL.Endpoint = "localhost:4317"
	}
	if cfg.OTEL.MetricsExportInterval <= 0 {
		cfg.OTEL.MetricsExportInterval = 30 * time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
}

// Validate reports every missing or malformed setting needed for req in a
// single error so startup fails with one complete diagnostic.
func (c *Config) Validate(req Requirement) error {
	var problems []string
	if req&RequireDatabase != 0 {
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required")
		}
		if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
			problems = append(problems, fmt.Sprintf("DATABASE_DRIVER %q is not supported (postgres, sqlite)", c.Database.Driver))
		}
	}
	if req&RequireWeb != 0 {
		if c.Admin.Password == "" {
			problems = append(problems, "ADMIN_PASSWORD is required")
		}
		switch {
		case c.Session.Secret == "":
			problems = append(problems, "SESSION_SECRET is required")
		case len(c.Session.Secret) < minSessionSecretLen:
			problems = append(problems, fmt.Sprintf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen))
		}
		switch c.Session.Store {
		case SessionStoreDatabase, SessionStoreMemory:
		case SessionStoreRedis:
			if c.Redis.Addr == "" {
				problems = append(problems, "REDIS_ADDR is required when SESSION_STORE is redis")
			}
		default:
			problems = append(problems, fmt.Sprintf("SESSION_STORE %q is not supported (database, redis, memory)", c.Session.Store))
		}
	}
	if req&RequireDiscord != 0 && c.Discord.Token == "" {
		problems = append(problems, "DISCORD_BOT_TOKEN is required")
	}

	var err error
	if len(problems) > 0 {
		err = fmt.Errorf("validate config: %s", strings.Join(problems, "; "))
	}
	recordConfigValidationEvent(context.Background(), c.OTEL.Environment, outcomeOf(err), classifyConfigLoadError(err))
	return err
}

func outcomeOf(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = n
	return nil
}
