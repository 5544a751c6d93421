package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/odyssey-erp/invoicing/cmd/invoicing/cli"
	"github.com/odyssey-erp/invoicing/internal/app"
	"github.com/odyssey-erp/invoicing/internal/invoice"
	"github.com/odyssey-erp/invoicing/internal/observability"
	"github.com/odyssey-erp/invoicing/internal/platform/cache"
	"github.com/odyssey-erp/invoicing/internal/platform/db"
	"github.com/odyssey-erp/invoicing/internal/rbac"
	"github.com/odyssey-erp/invoicing/jobs"
	"github.com/odyssey-erp/invoicing/migrations"
)

const usage = `usage: invoicing [serve|migrate|jobs <stats|archived|post NUMBER|void NUMBER>]`

func main() {
	if app.InTestMode() {
		log.Info().Msg("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := app.NewLogger(cfg)

	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "jobs":
		err = runJobs(ctx, cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Str("command", cmd).Msg("invoicing")
	}
}

func serve(ctx context.Context, cfg *app.Config, logger zerolog.Logger) error {
	metrics := observability.NewMetrics()
	redisOpt := cache.AsynqOpt(cache.Options{Addr: cfg.RedisAddr})

	queue, err := jobs.NewClient(redisOpt)
	if err != nil {
		return fmt.Errorf("queue client: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn().Err(err).Msg("queue close")
		}
	}()

	deps, err := app.BuildDeps(ctx, app.DepsConfig{
		Config:     cfg,
		Logger:     logger,
		Registerer: metrics.Registerer(),
		Queue:      queue,
		Migrate:    true,
	})
	if err != nil {
		return err
	}
	defer deps.Close()

	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn().Err(err).Msg("inspector close")
		}
	}()

	rbacMiddleware := rbac.Middleware{Logger: logger}
	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		RBACMiddleware: rbacMiddleware,
		InvoiceHandler: invoice.NewHandler(logger, deps.Service, deps.Directory, rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		Ready:          func(r *http.Request) error { return deps.Ready(r.Context()) },
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}
	return app.Serve(ctx, server, logger)
}

func migrate(ctx context.Context, cfg *app.Config, logger zerolog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := migrations.Apply(ctx, pool); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")
	return nil
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	c, err := cli.NewJobsCLI(cache.AsynqOpt(cache.Options{Addr: cfg.RedisAddr}))
	if err != nil {
		return err
	}
	defer c.Close()

	switch args[0] {
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return cli.WriteStats(os.Stdout, stats)
	case "archived":
		tasks, err := c.ListArchived(ctx, 20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Payload, t.LastErr)
		}
		return nil
	case "post", "void":
		if len(args) < 2 {
			return errors.New(usage)
		}
		info, err := c.Trigger(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "enqueued %s %s\n", info.Type, info.ID)
		return nil
	default:
		return errors.New(usage)
	}
}
