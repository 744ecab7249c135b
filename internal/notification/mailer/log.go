package mailer

import (
	"context"
	"fmt"
	"log/slog"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/example/event-booking/internal/notification"
)

// LogTransport writes messages to a logger instead of delivering them. It is
// used when no SMTP relay is configured.
type LogTransport struct {
	logger *slog.Logger
}

// NewLogTransport returns a transport that logs every message at info level.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger.With("component", "LogTransport")}
}

// Send implements notification.Transport.
func (t *LogTransport) Send(ctx context.Context, msg notification.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate message id: %w", err)
	}
	attachments := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, att.Filename)
	}
	t.logger.InfoContext(ctx, "email logged",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"attachments", attachments,
	)
	return id, nil
}
