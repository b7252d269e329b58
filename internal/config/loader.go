package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MEXCBOT_* environment variable overrides, and
// returns the final Config. An empty path or a missing file leaves the
// defaults in place so env-only deployments work. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MEXCBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). The unprefixed names used by earlier deployments are accepted as
// aliases.
func applyEnvOverrides(cfg *Config) {
	// ── MEXC ──
	setStr(&cfg.MEXC.BaseURL, "MEXC_BASE_URL") // compatibility alias
	setStr(&cfg.MEXC.BaseURL, "MEXCBOT_MEXC_BASE_URL")
	setStr(&cfg.MEXC.WSURL, "MEXCBOT_MEXC_WS_URL")
	setStr(&cfg.MEXC.APIKey, "MEXC_API_KEY") // compatibility alias
	setStr(&cfg.MEXC.APIKey, "MEXCBOT_MEXC_API_KEY")
	setStr(&cfg.MEXC.SecretKey, "MEXC_SECRET_KEY") // compatibility alias
	setStr(&cfg.MEXC.SecretKey, "MEXCBOT_MEXC_SECRET_KEY")
	setStr(&cfg.MEXC.EncryptedSecretPath, "MEXCBOT_MEXC_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.MEXC.KeyPassword, "MEXCBOT_MEXC_KEY_PASSWORD")
	setDuration(&cfg.MEXC.Timeout, "MEXCBOT_MEXC_TIMEOUT")
	setInt(&cfg.MEXC.RateLimit, "MEXCBOT_MEXC_RATE_LIMIT")
	setDuration(&cfg.MEXC.RateLimitWindow, "MEXCBOT_MEXC_RATE_LIMIT_WINDOW")

	// ── SSM ──
	setBool(&cfg.SSM.Enabled, "USE_SSM") // compatibility alias
	setBool(&cfg.SSM.Enabled, "MEXCBOT_SSM_ENABLED")
	setStr(&cfg.SSM.Prefix, "SSM_PREFIX") // compatibility alias
	setStr(&cfg.SSM.Prefix, "MEXCBOT_SSM_PREFIX")
	setStr(&cfg.SSM.Region, "AWS_REGION")
	setStr(&cfg.SSM.Region, "MEXCBOT_SSM_REGION")

	// ── Store ──
	setStr(&cfg.Store.Backend, "MEXCBOT_STORE_BACKEND")

	// ── DynamoDB ──
	setStr(&cfg.Dynamo.Region, "AWS_REGION")
	setStr(&cfg.Dynamo.Region, "MEXCBOT_DYNAMO_REGION")
	setStr(&cfg.Dynamo.Endpoint, "MEXCBOT_DYNAMO_ENDPOINT")
	setStr(&cfg.Dynamo.Table, "DYNAMODB_TABLE") // compatibility alias
	setStr(&cfg.Dynamo.Table, "MEXCBOT_DYNAMO_TABLE")
	setStr(&cfg.Dynamo.AccessKey, "MEXCBOT_DYNAMO_ACCESS_KEY")
	setStr(&cfg.Dynamo.SecretKey, "MEXCBOT_DYNAMO_SECRET_KEY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MEXCBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MEXCBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MEXCBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MEXCBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MEXCBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MEXCBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MEXCBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MEXCBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MEXCBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MEXCBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MEXCBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MEXCBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MEXCBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MEXCBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MEXCBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MEXCBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MEXCBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MEXCBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "MEXCBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.PriceTTL, "MEXCBOT_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MEXCBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MEXCBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MEXCBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "MEXCBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "MEXCBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "MEXCBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MEXCBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MEXCBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MEXCBOT_S3_FORCE_PATH_STYLE")

	// ── Sniper ──
	setStringSlice(&cfg.Sniper.Owners, "MEXCBOT_SNIPER_OWNERS")
	setFloat64(&cfg.Sniper.MinConfidence, "MEXCBOT_SNIPER_MIN_CONFIDENCE")
	setStr(&cfg.Sniper.Side, "MEXCBOT_SNIPER_SIDE")
	setFloat64(&cfg.Sniper.Quantity, "MEXCBOT_SNIPER_QUANTITY")
	setDuration(&cfg.Sniper.ScanInterval, "MEXCBOT_SNIPER_SCAN_INTERVAL")
	setDuration(&cfg.Sniper.Lead, "MEXCBOT_SNIPER_LEAD")
	setDuration(&cfg.Sniper.MissAfter, "MEXCBOT_SNIPER_MISS_AFTER")
	setDuration(&cfg.Sniper.Lookback, "MEXCBOT_SNIPER_LOOKBACK")
	setDuration(&cfg.Sniper.LockTTL, "MEXCBOT_SNIPER_LOCK_TTL")
	setInt(&cfg.Sniper.Parallel, "MEXCBOT_SNIPER_PARALLEL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "MEXCBOT_FEED_ENABLED")
	setStringSlice(&cfg.Feed.Symbols, "MEXCBOT_FEED_SYMBOLS")
	setDuration(&cfg.Feed.FlushInterval, "MEXCBOT_FEED_FLUSH_INTERVAL")

	// ── Archive ──
	setStr(&cfg.Archive.Cron, "MEXCBOT_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "MEXCBOT_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setInt(&cfg.Server.Port, "RUST_API_PORT") // compatibility alias
	setInt(&cfg.Server.Port, "MEXCBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MEXCBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MEXCBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "MEXCBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "MEXCBOT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN") // compatibility alias
	setStr(&cfg.Notify.TelegramToken, "MEXCBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MEXCBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MEXCBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MEXCBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MEXCBOT_MODE")
	setStr(&cfg.LogLevel, "MEXCBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
