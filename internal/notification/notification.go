package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// KindTransfer is sent to both parties of a balance transfer.
	KindTransfer = "transfer"
	// KindBonusPaid is sent to an account that received its round share.
	KindBonusPaid = "bonus_paid"
	// KindBonusSwept is sent to the collector of a closed round's leftover pool.
	KindBonusSwept = "bonus_swept"
)

// Message describes a notification payload.
type Message struct {
	Kind        string `json:"kind"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// Fanout delivers each message to every notifier and joins their errors.
type Fanout []Notifier

// Send forwards message to all notifiers.
func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
