package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Mailer delivers a finished report to one recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPOptions configure the SMTP transport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends plain-text mail over SMTP with STARTTLS.
type SMTPMailer struct {
	opts   SMTPOptions
	logger zerolog.Logger
}

// NewSMTPMailer constructs the mailer.
func NewSMTPMailer(opts SMTPOptions, logger zerolog.Logger) *SMTPMailer {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 587
	}

	return &SMTPMailer{
		opts:   opts,
		logger: logger.With().Str("component", "mailer").Logger(),
	}
}

// Send delivers one message. The context deadline bounds the whole
// exchange via the connection deadline.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(m.opts.Host, fmt.Sprintf("%d", m.opts.Port))

	conn, err := net.DialTimeout("tcp", addr, m.opts.Timeout)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}

	deadline := time.Now().Add(m.opts.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, m.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.opts.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if m.opts.Username != "" {
		auth := smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt %s: %w", to, err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(renderMail(m.opts.From, to, subject, body))); err != nil {
		writer.Close()
		return fmt.Errorf("write smtp body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close smtp body: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}

	m.logger.Info().Str("to", to).Str("subject", subject).Msg("report mail sent")
	return nil
}

func renderMail(from, to, subject, body string) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return builder.String()
}

var _ Mailer = (*SMTPMailer)(nil)
