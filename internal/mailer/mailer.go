// Package mailer отправляет пакетные письма из очереди email.batches.
//
// Доставка из очереди at-least-once, поэтому каждое письмо пакета
// отмечается в Redis перед отправкой. Повторная доставка пакета
// отправляет только письма без отметки.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/mq"
	"github.com/shaiso/quizflow/internal/telemetry"
	"golang.org/x/time/rate"
)

const (
	defaultSendTimeout = 15 * time.Second
	releaseTimeout     = 5 * time.Second
)

// Report — итог обработки пакета.
type Report struct {
	Sent    int
	Skipped int // уже отправлены при прошлой доставке
	Failed  int
}

// Mailer обрабатывает пакеты писем.
type Mailer struct {
	provider    Provider
	dedupe      Deduper
	limiter     *rate.Limiter
	sendTimeout time.Duration
	logger      *slog.Logger
}

// Config — конфигурация Mailer.
type Config struct {
	Provider    Provider
	Dedupe      Deduper       // nil — без дедупликации
	RatePerSec  float64       // писем в секунду; <= 0 — без ограничения
	Burst       int           // default: 1
	SendTimeout time.Duration // таймаут одного письма (default: 15s)
	Logger      *slog.Logger
}

// New создаёт новый Mailer.
func New(cfg Config) *Mailer {
	m := &Mailer{
		provider:    cfg.Provider,
		dedupe:      cfg.Dedupe,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.provider == nil {
		m.provider = LogProvider{Logger: m.logger}
	}
	if m.sendTimeout <= 0 {
		m.sendTimeout = defaultSendTimeout
	}

	limit, burst := rate.Inf, cfg.Burst
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if burst <= 0 {
		burst = 1
	}
	m.limiter = rate.NewLimiter(limit, burst)
	return m
}

// HandleDelivery — mq.Handler для очереди email.batches.
// Некорректный payload отклоняется без повтора.
func (m *Mailer) HandleDelivery(ctx context.Context, d *mq.Delivery) error {
	if d.Message.Type != mq.MessageTypeEmailBatch {
		return fmt.Errorf("%w: unexpected message type %q", mq.ErrReject, d.Message.Type)
	}
	batch, err := mq.ParsePayload[domain.EmailBatch](&d.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrReject, err)
	}
	_, err = m.SendBatch(ctx, batch)
	return err
}

// SendBatch отправляет письма пакета.
//
// Ошибка отправки одного письма не прерывает остальные; отметка
// такого письма снимается, и пакет возвращается ошибкой для повтора.
// Письма с неизвестным шаблоном пропускаются и в повтор не идут.
func (m *Mailer) SendBatch(ctx context.Context, batch domain.EmailBatch) (Report, error) {
	logger := m.logger.With("batch_id", batch.ID, "batch_key", batch.Key)
	var (
		report Report
		errs   []error
	)

	for i, msg := range batch.Messages {
		email, err := Render(msg)
		if err != nil {
			logger.Error("email not rendered, dropping", "to", msg.To, "error", err)
			report.Failed++
			continue
		}

		key := batch.ID.String() + ":" + strconv.Itoa(i)
		if m.dedupe != nil {
			ok, err := m.dedupe.Acquire(ctx, key)
			if err != nil {
				return report, fmt.Errorf("dedupe: %w", err)
			}
			if !ok {
				report.Skipped++
				continue
			}
		}

		if err := m.send(ctx, email); err != nil {
			report.Failed++
			errs = append(errs, err)
			logger.Warn("email send failed", "to", email.To, "error", err)
			if m.dedupe != nil {
				if rerr := m.release(ctx, key); rerr != nil {
					logger.Error("failed to release dedupe key", "key", key, "error", rerr)
				}
			}
			continue
		}
		report.Sent++
	}

	outcome := "ok"
	if len(errs) > 0 {
		outcome = "error"
	}
	telemetry.EmailBatches.WithLabelValues("send", outcome).Inc()
	logger.Info("email batch processed",
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, errors.Join(errs...)
}

// release снимает отметку письма и после отмены ctx: иначе повторная
// доставка сочтёт неотправленное письмо отправленным до истечения TTL.
func (m *Mailer) release(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	return m.dedupe.Release(ctx, key)
}

func (m *Mailer) send(ctx context.Context, e Email) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	sendCtx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()
	return m.provider.Send(sendCtx, e)
}
