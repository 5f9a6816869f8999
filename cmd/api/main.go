package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/sync/errgroup"

	"github.com/ideahub/backend/internal/config"
	"github.com/ideahub/backend/internal/database"
	"github.com/ideahub/backend/internal/events"
	"github.com/ideahub/backend/internal/execution"
	"github.com/ideahub/backend/internal/jobs"
	"github.com/ideahub/backend/internal/metrics"
	"github.com/ideahub/backend/internal/repository/memory"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	switch cfg.Store {
	case config.StoreMemory:
		err = runMemory(ctx, cfg, m, logger)
	default:
		err = runPostgres(ctx, cfg, m, logger)
	}
	if err != nil {
		logger.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

func runPostgres(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *slog.Logger) error {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w (is PostgreSQL running? e.g. make dev-up)", err)
	}
	defer pool.Close()
	logger.Info("Connected to PostgreSQL")

	if err := database.Migrate(ctx, pool, logger); err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	logger.Info("River migrations applied")

	st := postgresStores(pool)
	inserter := &lateInserter{}
	webhook := cfg.Workers.EventWebhookURL != ""
	publisher := events.NewPublisher(logger, events.NewLogSink(logger), events.NewRiverSink(inserter, webhook))

	a, err := newApp(cfg, st, publisher, m, logger)
	if err != nil {
		return err
	}
	a.tasks.SetAssignQueue(jobs.NewRiverQueue(inserter))

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewAutoAssignWorker(a.assigner, logger))
	river.AddWorker(workers, execution.NewAwardXPWorker(st.users))
	if webhook {
		river.AddWorker(workers, execution.NewDeliverEventWorker(cfg.Workers.EventWebhookURL))
	}
	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Workers.Concurrency},
			events.QueueEvents: {MaxWorkers: max(1, cfg.Workers.Concurrency/2)},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("river client: %w", err)
	}
	inserter.set(riverClient)

	return serve(ctx, cfg, a.handler, logger, riverClient)
}

func runMemory(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *slog.Logger) error {
	logger.Warn("Using the in-memory store; data is lost on exit")
	st := memoryStores(memory.New())
	publisher := events.NewPublisher(logger, events.NewLogSink(logger), events.NewAwardSink(st.users))

	a, err := newApp(cfg, st, publisher, m, logger)
	if err != nil {
		return err
	}
	queue := jobs.NewInlineQueue(a.assigner, logger)
	a.tasks.SetAssignQueue(queue)
	defer queue.Wait()

	return serve(ctx, cfg, a.handler, logger, nil)
}

// serve runs the HTTP server, and River when given, until ctx is cancelled.
func serve(ctx context.Context, cfg config.Config, h http.Handler, logger *slog.Logger, rc *river.Client[pgx.Tx]) error {
	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if rc != nil {
		g.Go(func() error {
			if err := rc.Start(gctx); err != nil {
				return fmt.Errorf("river start: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if rc != nil {
			err = errors.Join(err, rc.Stop(shutdownCtx))
		}
		return err
	})
	return g.Wait()
}
