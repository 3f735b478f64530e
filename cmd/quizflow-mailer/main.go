// quizflow-mailer — отправляет пакеты писем из очереди email.batches.
//
// Mailer:
//   - Потребляет сообщения email.batch из RabbitMQ
//   - Дедуплицирует письма через Redis (повторная доставка не шлёт дубли)
//   - Ограничивает темп отправки
//   - Сообщения, упавшие повторно, уходят в dlq.email
//
// Mailer масштабируется горизонтально.
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

	"github.com/shaiso/quizflow/internal/config"
	"github.com/shaiso/quizflow/internal/mailer"
	"github.com/shaiso/quizflow/internal/mq"
	"github.com/shaiso/quizflow/internal/telemetry"
)

func main() {
	cfg, err := config.LoadDefault()
	if err != nil {
		telemetry.SetupLogger(telemetry.LoggerOptions{}).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(telemetry.LoggerOptions{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("starting quizflow-mailer")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mqConn, err := mq.Dial(mq.ConnectionConfig{URL: cfg.RabbitMQ.URL, Logger: logger})
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	logger.Info("RabbitMQ connected", "topology", mq.TopologyInfo())

	// Redis: без него повторная доставка может отправить письмо дважды.
	var dedupe mailer.Deduper
	rdb, err := mailer.NewRedisClient(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Warn("Redis not available, email dedupe disabled", "error", err)
	} else {
		defer rdb.Close()
		dedupe = mailer.NewRedisDeduper(rdb, config.Duration(cfg.Mailer.DedupeTTL, 0))
		logger.Info("Redis connected", "addr", cfg.Redis.Addr)
	}

	var provider mailer.Provider = mailer.LogProvider{Logger: logger}
	if cfg.Mailer.Provider == "smtp" {
		smtp := cfg.Mailer.SMTP
		provider = mailer.NewSMTPProvider(mailer.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
		})
	}
	logger.Info("email provider selected", "provider", cfg.Mailer.Provider)

	m := mailer.New(mailer.Config{
		Provider:    provider,
		Dedupe:      dedupe,
		RatePerSec:  cfg.Mailer.RatePerSec,
		Burst:       cfg.Mailer.Burst,
		SendTimeout: config.Duration(cfg.Mailer.SendTimeout, 0),
		Logger:      logger,
	})

	consumer := mq.NewConsumer(mqConn, mq.ConsumerConfig{
		Queue:    mq.QueueEmailBatches,
		Handler:  m.HandleDelivery,
		Prefetch: cfg.Mailer.Prefetch,
		Logger:   logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			http.Error(rw, "rabbitmq disconnected", http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Mailer.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
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
		consumer.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("mailer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("quizflow-mailer stopped")
}
