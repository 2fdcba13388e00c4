package notify

import (
	"context"
	"log/slog"

	"orderFulfillmentTracking/models"
)

// Sender delivers a notification to an external push channel. Persistence
// happens before Send; a failed Send loses only the push, never the stored
// notification.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// LogSender writes notifications to the log instead of a broker. Used in
// development and as the fallback when no broker is configured.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(_ context.Context, n *models.Notification) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification",
		"recipient_id", n.RecipientID,
		"order_id", n.OrderID,
		"title", n.Title,
	)
	return nil
}
