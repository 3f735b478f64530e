// quizflow-scheduler — исполняет отложенные задачи жизненного цикла квизов.
//
// Scheduler:
//   - Забирает созревшие задачи из таблицы jobs (quiz-start, quiz-autoclose,
//     notification-retention) с арендой, допускает несколько экземпляров
//   - Рассылает уведомления и ставит пакеты писем в RabbitMQ
//   - Планирует ежедневную очистку прочитанных уведомлений
//
// HTTP: /healthz, /metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/quizflow/internal/app"
	"github.com/shaiso/quizflow/internal/config"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/telemetry"
)

func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		telemetry.SetupLogger(telemetry.LoggerOptions{}).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(telemetry.LoggerOptions{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("starting quizflow-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ: без брокера уведомления создаются, письма не отправляются.
	emailQueue, closeQueue := app.DialEmailQueue(ctx, cfg, logger)
	defer closeQueue()

	svc := app.New(app.PostgresStores(pool), app.Options{
		Config:     cfg,
		EmailQueue: emailQueue,
		Logger:     logger,
	})

	if id, err := svc.Lifecycle.EnsureRetentionScheduled(ctx); err != nil {
		logger.Error("failed to schedule notification retention", "error", err)
		os.Exit(1)
	} else {
		logger.Info("notification retention scheduled", "job_id", id)
	}

	w := svc.NewWorker()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(rw, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Scheduler.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := w.Start(gctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		<-gctx.Done()
		w.Stop()
		return nil
	})

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("quizflow-scheduler stopped")
}
