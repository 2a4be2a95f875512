// Package notify delivers alert notifications to an outbound message sink.
package notify

import (
	"context"
	"log/slog"

	"github.com/hibaYsr/Alsat-Track-Sat/internal/alert"
)

// Transport sends a notification to its destination. A send failure is
// terminal for that notification: alerts are one-shot per occurrence and the
// engine does not retry.
type Transport interface {
	Send(ctx context.Context, n alert.Notification) error
}

// LogTransport writes notifications to the log instead of an external sink.
// Used when no delivery credentials are configured.
type LogTransport struct {
	Logger *slog.Logger
}

// Send implements Transport.
func (t *LogTransport) Send(ctx context.Context, n alert.Notification) error {
	t.Logger.Info("notification",
		"object_id", n.ObjectID,
		"kind", string(n.Kind),
		"occurred_at", n.OccurredAt,
		"payload", n.Payload,
	)
	return nil
}
