package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/odyssey-erp/invoicing/internal/dispatch"
	"github.com/odyssey-erp/invoicing/internal/invoice"
	"github.com/odyssey-erp/invoicing/internal/platform/cache"
	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/internal/recalc"
	"github.com/odyssey-erp/invoicing/internal/remote"
	"github.com/odyssey-erp/invoicing/internal/shared"
	"github.com/odyssey-erp/invoicing/migrations"
)

// Deps holds the infrastructure shared by the API and the worker.
type Deps struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Dispatcher  *dispatch.Client
	Directory   *remote.Directory
	Idempotency *shared.IdempotencyStore
	Service     *invoice.Service
}

// DepsConfig selects optional wiring.
type DepsConfig struct {
	Config     *Config
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
	// Queue routes post and void through background workers when set.
	Queue invoice.Queue
	// Migrate applies the embedded schema before returning.
	Migrate bool
}

// BuildDeps connects to PostgreSQL and Redis and assembles the invoice
// service over the ERP dispatcher. A Redis outage disables lookup caching
// rather than failing start-up.
func BuildDeps(ctx context.Context, dc DepsConfig) (*Deps, error) {
	cfg := dc.Config
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	logger := dc.Logger

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if dc.Migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: migrate: %w", err)
		}
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, lookup cache disabled")
		redisClient = nil
	}

	dispatcher := dispatch.NewClient(dispatch.ClientConfig{
		BaseURL:    cfg.DispatchURL,
		Timeout:    cfg.DispatchTimeout,
		Logger:     logger,
		Registerer: dc.Registerer,
	})
	if err := dispatcher.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("url", cfg.DispatchURL).Msg("dispatch endpoint not reachable")
	}

	var lookupCache *remote.Cache
	if redisClient != nil {
		lookupCache = remote.NewCache(remote.CacheConfig{
			Client:     redisClient,
			TTL:        cfg.CacheTTL,
			Logger:     logger,
			Registerer: dc.Registerer,
		})
	}
	directory := remote.NewDirectory(dispatcher, lookupCache)

	services := invoice.Services{
		Prices:     remote.NewPrices(dispatcher),
		Taxes:      remote.NewTaxes(dispatcher),
		Items:      remote.NewItems(dispatcher, lookupCache),
		Currencies: remote.NewCurrencies(dispatcher),
		Credits:    remote.NewCredits(dispatcher),
		Logger:     logger,
		Metrics:    recalc.NewMetrics(dc.Registerer),
	}

	svcCfg := invoice.ServiceConfig{
		Repo:     invoice.NewRepository(pool),
		Actions:  remote.NewInvoices(dispatcher),
		Audit:    shared.NewAuditLogger(pool),
		Services: services,
		Settings: cfg.InvoiceSettings(),
		Logger:   logger,
	}
	if dc.Queue != nil {
		svcCfg.Queue = dc.Queue
	}

	return &Deps{
		Pool:        pool,
		Redis:       redisClient,
		Dispatcher:  dispatcher,
		Directory:   directory,
		Idempotency: shared.NewIdempotencyStore(pool),
		Service:     invoice.NewService(svcCfg),
	}, nil
}

// Ready pings PostgreSQL.
func (d *Deps) Ready(ctx context.Context) error {
	if d == nil || d.Pool == nil {
		return errors.New("app: not connected")
	}
	return d.Pool.Ping(ctx)
}

// Close releases connections.
func (d *Deps) Close() {
	if d == nil {
		return
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
}
