package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/internal/config"
	"github.com/meikuraledutech/workflow/internal/logging"
	"github.com/meikuraledutech/workflow/postgres"
	"github.com/meikuraledutech/workflow/runner"
	"github.com/meikuraledutech/workflow/sqlite"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	if cfg.AutoMigrate {
		if err := store.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		log.Info("schema ready")
	}

	app := newApp(store, runner.NewService(store, nil, log), log, cfg.RunTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr, "store", cfg.Store.Driver)
		return app.Listen(cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return app.ShutdownWithContext(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, sc config.StoreConfig) (workflow.Store, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		return sqlite.Open(sc.DSN)
	default:
		pool, err := pgxpool.New(ctx, sc.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return postgres.New(pool), nil
	}
}
