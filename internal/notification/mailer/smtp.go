// Package mailer provides notification.Transport implementations.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	mail "github.com/wneessen/go-mail"

	"github.com/example/event-booking/internal/notification"
)

const messageIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// SMTPConfig describes the outbound SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
}

// SMTPTransport delivers messages through an SMTP relay. Each Send dials its
// own connection, matching the one-message-at-a-time pacing of the dispatcher.
type SMTPTransport struct {
	client   *mail.Client
	from     string
	fromName string
	domain   string
}

// NewSMTPTransport validates cfg and prepares the client.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if !notification.ValidAddress(cfg.From) {
		return nil, fmt.Errorf("smtp sender %q is not a valid address", cfg.From)
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPTransport{
		client:   client,
		from:     cfg.From,
		fromName: cfg.FromName,
		domain:   senderDomain(cfg.From),
	}, nil
}

// Send implements notification.Transport and returns the generated Message-ID.
func (t *SMTPTransport) Send(ctx context.Context, msg notification.Message) (string, error) {
	m, messageID, err := t.build(msg)
	if err != nil {
		return "", err
	}
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return messageID, nil
}

func (t *SMTPTransport) build(msg notification.Message) (*mail.Msg, string, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(t.fromName, t.from); err != nil {
		return nil, "", fmt.Errorf("set sender: %w", err)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, "", fmt.Errorf("set recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	id, err := gonanoid.Generate(messageIDAlphabet, 21)
	if err != nil {
		return nil, "", fmt.Errorf("generate message id: %w", err)
	}
	messageID := fmt.Sprintf("<%s@%s>", id, t.domain)
	m.SetGenHeader(mail.HeaderMessageID, messageID)

	for _, att := range msg.Attachments {
		if err := m.AttachReader(att.Filename, bytes.NewReader(att.Data), mail.WithFileContentType(mail.ContentType(att.ContentType))); err != nil {
			return nil, "", fmt.Errorf("attach %s: %w", att.Filename, err)
		}
	}
	return m, messageID, nil
}

func senderDomain(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
