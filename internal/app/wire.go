package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/trailbot/internal/actor"
	"github.com/alanyoungcy/trailbot/internal/admin"
	"github.com/alanyoungcy/trailbot/internal/archive"
	s3blob "github.com/alanyoungcy/trailbot/internal/blob/s3"
	"github.com/alanyoungcy/trailbot/internal/cache/redis"
	"github.com/alanyoungcy/trailbot/internal/config"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/executor"
	"github.com/alanyoungcy/trailbot/internal/feed"
	"github.com/alanyoungcy/trailbot/internal/notify"
	"github.com/alanyoungcy/trailbot/internal/server"
	"github.com/alanyoungcy/trailbot/internal/server/handler"
	"github.com/alanyoungcy/trailbot/internal/state"
	"github.com/alanyoungcy/trailbot/internal/store/postgres"
)

// Dependencies bundles everything the running application needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store       domain.KVStore
	RateLimiter domain.RateLimiter

	Registry *actor.Registry
	Batches  chan domain.ActionBatch
	Executor *executor.Executor
	Feed     *feed.PriceWSFeed // nil when the pushed feed is disabled
	Server   *server.Server
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

	deps := &Dependencies{}

	// --- Redis (storage backend and/or rate limiter) ---
	backend := strings.ToLower(cfg.Storage.Backend)
	needsRedis := backend == "redis" || cfg.Server.RateLimit > 0
	var redisClient *redis.Client
	if needsRedis {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		if cfg.Server.RateLimit > 0 {
			deps.RateLimiter = redis.NewRateLimiter(redisClient)
		}
	}

	// --- Durable actor state ---
	switch backend {
	case "redis":
		deps.Store = redis.NewKV(redisClient)

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Store = postgres.NewKVStore(pgClient.Pool())

	case "memory":
		logger.Warn("wire: using in-memory storage, state will not survive a restart")
		deps.Store = state.NewMemStore()

	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown storage backend %q", cfg.Storage.Backend)
	}

	// --- Closed-position sinks: archive and notifications fan out ---
	var sinks []domain.ClosedPositionSink

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		sinks = append(sinks, archive.NewArchiver(s3blob.NewWriter(s3Client), logger))
	}

	var senders []notify.Sender
	var owners *notify.TelegramSender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		owners = notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		senders = append(senders, owners)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		sinks = append(sinks, notify.NewClosedSink(notifier, owners, logger))
	}

	// --- Actors and executor ---
	deps.Batches = make(chan domain.ActionBatch, cfg.Executor.BatchBuffer)

	deps.Registry = actor.NewRegistry(actor.Deps{
		Store:    deps.Store,
		Oracle:   makeOracle(cfg),
		Resolver: makeResolver(cfg),
		Admin:    admin.NewGate(cfg.Environment, cfg.Admin.SuperAdminID, cfg.Admin.AdminIDs),
		Sink:     fanoutSink(sinks),
		Batches:  deps.Batches,
		Logger:   logger,
	})

	deps.Executor = executor.NewExecutor(
		deps.Batches,
		executor.NewLoggingPipeline(logger),
		cfg.Executor.MaxConcurrent,
		logger,
	)
	if cfg.Executor.DedupTTL.Duration > 0 {
		deps.Executor.SetDedupTTL(cfg.Executor.DedupTTL.Duration)
	}

	// --- Pushed price feed ---
	if cfg.Feed.Enabled {
		pairs := make([]feed.Pair, 0, len(cfg.Feed.Pairs))
		for _, p := range cfg.Feed.Pairs {
			pairs = append(pairs, feed.Pair{
				TokenAddress:   p.TokenAddress,
				VsTokenAddress: p.VsTokenAddress,
			})
		}
		deps.Feed = feed.NewPriceWSFeed(cfg.Feed.WsURL, pairs, priceUpdateHandler(deps.Registry, logger), logger)
	}

	// --- HTTP server ---
	deps.Server = server.NewServer(
		server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
			RateLimit:   cfg.Server.RateLimit,
			RateWindow:  cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(deps.Registry, logger),
			RPC:    handler.NewRPCHandler(deps.Registry, logger),
		},
		deps.RateLimiter,
		logger,
	)

	return deps, cleanup, nil
}
