package alerts

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/sudo-init-do/dutydinar/internal/config"
)

// Mailer delivers a rendered envelope.
type Mailer interface {
	Send(ctx context.Context, env EmailEnvelope) error
}

// NewMailer returns an SMTP mailer when SMTP is fully configured and a log
// mailer otherwise.
func NewMailer(cfg config.SMTPConfig) Mailer {
	if cfg.Enabled() {
		return &SMTPMailer{cfg: cfg}
	}
	return LogMailer{}
}

// LogMailer writes emails to the structured log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, env EmailEnvelope) error {
	slog.InfoContext(ctx, "email (log mailer)", "to", env.To, "subject", env.Subject, "body", env.Body)
	return nil
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

// Send dials the server (implicit TLS on 465, STARTTLS otherwise) and
// delivers a plain text or HTML message.
func (m *SMTPMailer) Send(ctx context.Context, env EmailEnvelope) error {
	addr := net.JoinHostPort(m.cfg.Host, m.cfg.Port)
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.Port == "465" {
		d := tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if m.cfg.Port != "465" {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(env.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := wc.Write(buildMessage(m.cfg.From, env)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}

// headerValue folds CR and LF out of a header so user text cannot start a
// new header line or the body.
var headerValue = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func buildMessage(from string, env EmailEnvelope) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerValue.Replace(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue.Replace(env.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue.Replace(env.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")
	contentType := "text/plain"
	lb := strings.ToLower(env.Body)
	if strings.Contains(lb, "<html") || strings.Contains(lb, "<body") || strings.Contains(lb, "<!doctype html") {
		contentType = "text/html"
	}
	fmt.Fprintf(&b, "Content-Type: %s; charset=\"utf-8\"\r\n", contentType)
	b.WriteString("\r\n" + env.Body + "\r\n")
	return []byte(b.String())
}
