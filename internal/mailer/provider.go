package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// Provider отправляет одно письмо.
type Provider interface {
	Send(ctx context.Context, e Email) error
}

// LogProvider пишет письма в лог вместо отправки. Для локальной разработки.
type LogProvider struct {
	Logger *slog.Logger
}

// Send реализует Provider.
func (p LogProvider) Send(_ context.Context, e Email) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("email", "to", e.To, "subject", e.Subject, "body_len", len(e.Body))
	return nil
}

// SMTPConfig — параметры SMTP-сервера.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPProvider отправляет письма через SMTP (PLAIN auth, если задан Username).
type SMTPProvider struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPProvider создаёт SMTPProvider.
func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	p := &SMTPProvider{cfg: cfg, send: smtp.SendMail}
	if cfg.Username != "" {
		p.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return p
}

// Send реализует Provider. smtp.SendMail не принимает context,
// поэтому отмена проверяется только до начала отправки.
func (p *SMTPProvider) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	if err := p.send(addr, p.auth, p.cfg.From, []string{e.To}, p.compose(e)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", e.To, err)
	}
	return nil
}

func (p *SMTPProvider) compose(e Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + p.cfg.From + "\r\n")
	b.WriteString("To: " + e.To + "\r\n")
	b.WriteString("Subject: " + e.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(e.Body, "\n", "\r\n"))
	return []byte(b.String())
}
