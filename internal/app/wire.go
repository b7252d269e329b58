package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/mexcsniper/internal/blob/s3"
	"github.com/alanyoungcy/mexcsniper/internal/cache/redis"
	"github.com/alanyoungcy/mexcsniper/internal/config"
	"github.com/alanyoungcy/mexcsniper/internal/crypto"
	"github.com/alanyoungcy/mexcsniper/internal/domain"
	"github.com/alanyoungcy/mexcsniper/internal/metrics"
	"github.com/alanyoungcy/mexcsniper/internal/notify"
	"github.com/alanyoungcy/mexcsniper/internal/platform/mexc"
	"github.com/alanyoungcy/mexcsniper/internal/store/dynamo"
	"github.com/alanyoungcy/mexcsniper/internal/store/memory"
	"github.com/alanyoungcy/mexcsniper/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional parts are nil when not configured.
type Dependencies struct {
	Exchange domain.Exchange
	Store    domain.TradingStore
	Audit    domain.AuditStore

	// Redis-backed; nil without Redis.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	Archiver domain.Archiver
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics
}

// needsS3 returns true for modes that archive to object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.S3.Enabled || cfg.Mode == "archive"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- Redis (optional: shared locks, bus, price cache, rate limit) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.MEXC.RateLimit, cfg.MEXC.RateLimitWindow.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		logger.WarnContext(ctx, "redis disabled: running without shared locks, bus or price cache")
	}

	// --- PostgreSQL (audit log, optional trading store) ---
	backend := strings.ToLower(cfg.Store.Backend)
	var pgClient *postgres.Client
	if cfg.Postgres.Enabled || backend == "postgres" {
		c, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, c.Close)
		if cfg.Postgres.RunMigrations {
			if err := c.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		pgClient = c
		deps.Audit = postgres.NewAuditStore(c.Pool())
	}

	// --- Trading store ---
	switch backend {
	case "dynamodb":
		api, err := dynamo.NewAPI(ctx, dynamo.ClientConfig{
			Region:    cfg.Dynamo.Region,
			Endpoint:  cfg.Dynamo.Endpoint,
			AccessKey: cfg.Dynamo.AccessKey,
			SecretKey: cfg.Dynamo.SecretKey,
		})
		if err != nil {
			return fail("dynamodb", err)
		}
		deps.Store = dynamo.NewStore(api, cfg.Dynamo.Table)
	case "postgres":
		deps.Store = postgres.NewItemStore(pgClient.Pool())
	case "memory":
		logger.WarnContext(ctx, "memory store selected: records are lost on restart")
		deps.Store = memory.New()
	default:
		return fail("store", fmt.Errorf("unknown backend %q", cfg.Store.Backend))
	}

	// --- Exchange ---
	var ssmAPI config.ParameterAPI
	if cfg.SSM.Enabled {
		c, err := config.NewSSMClient(ctx, cfg.SSM.Region)
		if err != nil {
			return fail("ssm", err)
		}
		ssmAPI = c
	}
	creds, err := config.ResolveCredentials(ctx, cfg, ssmAPI)
	if err != nil {
		return fail("credentials", err)
	}
	opts := []mexc.Option{
		mexc.WithTimeout(cfg.MEXC.Timeout.Duration),
		mexc.WithMetrics(deps.Metrics),
	}
	if deps.RateLimiter != nil && cfg.MEXC.RateLimit > 0 {
		opts = append(opts, mexc.WithRateLimiter(deps.RateLimiter, "mexc:rest",
			cfg.MEXC.RateLimit, cfg.MEXC.RateLimitWindow.Duration))
	}
	deps.Exchange = mexc.NewClient(cfg.MEXC.BaseURL, crypto.NewQuerySigner(creds.APIKey, creds.SecretKey), opts...)

	// --- S3 archive ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Store,
			deps.Store,
			deps.Audit,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
