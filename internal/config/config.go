// Package config defines the top-level configuration for the MEXC sniper bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MEXCBOT_* environment variables.
type Config struct {
	MEXC     MEXCConfig     `toml:"mexc"`
	SSM      SSMConfig      `toml:"ssm"`
	Store    StoreConfig    `toml:"store"`
	Dynamo   DynamoConfig   `toml:"dynamo"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Sniper   SniperConfig   `toml:"sniper"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MEXCConfig holds exchange endpoints and API credentials.
type MEXCConfig struct {
	BaseURL             string   `toml:"base_url"`
	WSURL               string   `toml:"ws_url"`
	APIKey              string   `toml:"api_key"`
	SecretKey           string   `toml:"secret_key"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	KeyPassword         string   `toml:"key_password"`
	Timeout             duration `toml:"timeout"`
	// Outbound request budget shared by all replicas; 0 disables it.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// SSMConfig selects AWS SSM Parameter Store as the credential source.
type SSMConfig struct {
	Enabled bool   `toml:"enabled"`
	Prefix  string `toml:"prefix"`
	Region  string `toml:"region"`
}

// StoreConfig selects the trading store backend.
type StoreConfig struct {
	// Backend is "dynamodb", "postgres" or "memory".
	Backend string `toml:"backend"`
}

// DynamoConfig holds the single-table DynamoDB parameters.
type DynamoConfig struct {
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	Table     string `toml:"table"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// PostgresConfig holds PostgreSQL connection parameters. The database backs
// the audit log and, with store.backend = "postgres", the trading store.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Without Redis the bot runs
// single-replica with in-process locks and bus.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SniperConfig drives the calendar scanner.
type SniperConfig struct {
	// Owners are the user ids whose calendars are scanned.
	Owners        []string `toml:"owners"`
	MinConfidence float64  `toml:"min_confidence"`
	Side          string   `toml:"side"`
	Quantity      float64  `toml:"quantity"`
	ScanInterval  duration `toml:"scan_interval"`
	Lead          duration `toml:"lead"`
	MissAfter     duration `toml:"miss_after"`
	Lookback      duration `toml:"lookback"`
	LockTTL       duration `toml:"lock_ttl"`
	Parallel      int      `toml:"parallel"`
}

// FeedConfig holds the market-data stream parameters.
type FeedConfig struct {
	Enabled       bool     `toml:"enabled"`
	Symbols       []string `toml:"symbols"`
	FlushInterval duration `toml:"flush_interval"`
}

// ArchiveConfig schedules the S3 export.
type ArchiveConfig struct {
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		MEXC: MEXCConfig{
			BaseURL:         "https://api.mexc.com",
			WSURL:           "wss://wbs.mexc.com/ws",
			Timeout:         duration{10 * time.Second},
			RateLimit:       20,
			RateLimitWindow: duration{time.Second},
		},
		SSM: SSMConfig{
			Prefix: "/app/mexc-sniper-bot",
			Region: "ap-southeast-1",
		},
		Store: StoreConfig{
			Backend: "dynamodb",
		},
		Dynamo: DynamoConfig{
			Region: "ap-southeast-1",
			Table:  "mexc_trading_data",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "mexcbot:",
			PriceTTL:   duration{time.Minute},
		},
		S3: S3Config{
			Region:         "ap-southeast-1",
			Bucket:         "mexc-sniper-archive",
			Prefix:         "mexcbot/",
			UseSSL:         true,
			ForcePathStyle: false,
		},
		Sniper: SniperConfig{
			MinConfidence: 0.95,
			Side:          "buy",
			Quantity:      10,
			ScanInterval:  duration{5 * time.Second},
			Lead:          duration{2 * time.Second},
			MissAfter:     duration{5 * time.Minute},
			Lookback:      duration{24 * time.Hour},
			LockTTL:       duration{30 * time.Second},
			Parallel:      4,
		},
		Feed: FeedConfig{
			FlushInterval: duration{time.Second},
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"calendar_detected", "snipe_executed", "snipe_failed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":     true,
	"scanner": true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"dynamodb": true,
	"postgres": true,
	"memory":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Credentials are checked
// only when no other source (SSM, key file) can supply them.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, scanner, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// MEXC
	if c.MEXC.BaseURL == "" {
		errs = append(errs, "mexc: base_url must not be empty")
	}
	if !c.SSM.Enabled {
		if c.MEXC.APIKey == "" {
			errs = append(errs, "mexc: api_key is required (or enable ssm)")
		}
		if c.MEXC.SecretKey == "" && c.MEXC.EncryptedSecretPath == "" {
			errs = append(errs, "mexc: either secret_key or encrypted_secret_path must be set (or enable ssm)")
		}
	}
	if c.MEXC.EncryptedSecretPath != "" && c.MEXC.KeyPassword == "" {
		errs = append(errs, "mexc: key_password is required when encrypted_secret_path is set")
	}
	if c.MEXC.Timeout.Duration <= 0 {
		errs = append(errs, "mexc: timeout must be > 0")
	}

	// SSM
	if c.SSM.Enabled && (c.SSM.Prefix == "" || c.SSM.Region == "") {
		errs = append(errs, "ssm: prefix and region must be set when enabled")
	}

	// Store
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: dynamodb, postgres, memory)", c.Store.Backend))
	}
	if backend == "dynamodb" {
		if c.Dynamo.Region == "" {
			errs = append(errs, "dynamo: region must not be empty")
		}
		if c.Dynamo.Table == "" {
			errs = append(errs, "dynamo: table must not be empty")
		}
	}

	// Postgres
	if c.Postgres.Enabled || backend == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 is required for archiving.
	if c.S3.Enabled || c.Mode == "archive" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Sniper
	if c.Sniper.MinConfidence < 0 || c.Sniper.MinConfidence > 1 {
		errs = append(errs, "sniper: min_confidence must be within [0, 1]")
	}
	if c.Sniper.Quantity <= 0 {
		errs = append(errs, "sniper: quantity must be > 0")
	}
	if s := strings.ToLower(c.Sniper.Side); s != "buy" && s != "sell" {
		errs = append(errs, fmt.Sprintf("sniper: side must be buy or sell, got %q", c.Sniper.Side))
	}
	if c.Sniper.ScanInterval.Duration <= 0 {
		errs = append(errs, "sniper: scan_interval must be > 0")
	}
	if (c.Mode == "scanner" || c.Mode == "full") && len(c.Sniper.Owners) == 0 {
		errs = append(errs, "sniper: owners must not be empty for mode "+c.Mode)
	}

	// Feed
	if c.Feed.Enabled {
		if c.MEXC.WSURL == "" {
			errs = append(errs, "mexc: ws_url must not be empty when the feed is enabled")
		}
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: symbols must not be empty when enabled")
		}
	}

	// Archive
	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}

	// Server
	if c.Mode == "api" || c.Mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
