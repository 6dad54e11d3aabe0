package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ricirt/adpromo/internal/backend"
	"github.com/ricirt/adpromo/internal/config"
	"github.com/ricirt/adpromo/internal/db"
	"github.com/ricirt/adpromo/internal/media"
	"github.com/ricirt/adpromo/internal/metrics"
	"github.com/ricirt/adpromo/internal/provider"
	"github.com/ricirt/adpromo/internal/ratelimiter"
	"github.com/ricirt/adpromo/internal/repository"
	"github.com/ricirt/adpromo/internal/service"
	"github.com/ricirt/adpromo/internal/worker"
)

// app holds every wired dependency. Subcommands build one, use the parts
// they need, and call close when done.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	reg    *prometheus.Registry

	repo       repository.EntryRepository
	redis      *redis.Client
	entries    *service.EntryService
	promotions *service.PromotionService

	closers []func()
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, reg: prometheus.NewRegistry()}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	// ---- optional redis ----
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = a.redis.Close() })
	}

	// ---- core dependencies ----
	hooks := metrics.New(a.reg).ServiceHooks()
	limiter := ratelimiter.New(cfg.RateLimit)

	cms := backend.NewClient(cfg.CMSBaseURL, cfg.CMSUser, cfg.CMSAppPassword, cfg.CMSTimeout, limiter)
	categories := backend.NewCategoryDirectory(cms, a.redis, cfg.CategoryCacheTTL, logger)
	resolver := media.NewResolver(cms, cfg.MediaFetchTimeout, cfg.MediaMaxBytes)

	a.entries = service.NewEntryService(
		a.repo, categories, resolver,
		service.NewPublisher(cms, cfg.UniqueSlug),
		service.PipelineOptions{ResolveMedia: cfg.ResolveMedia},
		hooks, logger,
	)

	poster := provider.NewWebhookPoster(cfg.SocialWebhookURL, cfg.SocialToken, cfg.SocialTimeout, limiter)
	a.promotions = service.NewPromotionService(a.repo, poster, service.PromotionMode(cfg.PromotionMode), hooks, logger)

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case config.StoreSQLite:
		gdb, err := db.OpenSQLite(a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		}
		repo, err := repository.NewSQLiteEntryRepository(gdb, a.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		a.repo = repo

	case config.StorePostgres:
		pool, err := db.Connect(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := db.Migrate(a.cfg.DatabaseURL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations applied")
		a.repo = repository.NewPgEntryRepository(pool)

	default:
		a.repo = repository.NewCSVEntryRepository(a.cfg.CSVPath)
	}

	a.logger.Info("queue store ready", zap.String("driver", a.cfg.StoreDriver))
	return nil
}

func (a *app) scheduler() (*worker.DailyScheduler, error) {
	at, err := worker.ParseTimeOfDay(a.cfg.PromoteAt)
	if err != nil {
		return nil, err
	}
	loc, err := a.cfg.Location()
	if err != nil {
		return nil, err
	}

	var guard worker.FireGuard
	if a.redis != nil {
		guard = worker.NewRedisFireGuard(a.redis)
	}
	return worker.NewDailyScheduler(a.promotions, at, loc, guard, a.logger), nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
