package notify

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

// EmailOptions carry SMTP connectivity for the email channel.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailChannel delivers alerts over SMTP with a multipart text+HTML body.
type EmailChannel struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailChannel constructs the SMTP channel.
func NewEmailChannel(opts EmailOptions, logger zerolog.Logger) *EmailChannel {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &EmailChannel{
		opts:   opts,
		logger: logger.With().Str("component", "email_channel").Logger(),
	}
}

// Name returns the channel identifier.
func (e *EmailChannel) Name() string { return "email" }

// Send delivers one message to one mailbox. Port 465 speaks TLS from the
// first byte; everything else upgrades via STARTTLS when offered. The
// connection deadline bounds the whole exchange; net/smtp carries no context.
func (e *EmailChannel) Send(ctx context.Context, recipient string, msg Message) error {
	addr := fmt.Sprintf("%s:%d", e.opts.Host, e.opts.Port)

	conn, err := net.DialTimeout("tcp", addr, e.opts.Timeout)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(e.opts.Timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	if e.opts.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: e.opts.Host})
	}

	client, err := smtp.NewClient(conn, e.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if e.opts.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: e.opts.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if e.opts.Username != "" {
		auth := smtp.PlainAuth("", e.opts.Username, e.opts.Password, e.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(e.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(buildMIME(e.opts.From, recipient, msg))); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	return client.Quit()
}

const mimeBoundary = "=_niftywatch_alt_boundary"

func buildMIME(from, to string, msg Message) string {
	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", to))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.Text)
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mimeBoundary))
	b.WriteString(fmt.Sprintf("--%s\r\n", mimeBoundary))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Text)
	b.WriteString(fmt.Sprintf("\r\n--%s\r\n", mimeBoundary))
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.HTML)
	b.WriteString(fmt.Sprintf("\r\n--%s--\r\n", mimeBoundary))
	return b.String()
}

var _ Channel = (*EmailChannel)(nil)
