package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// KindPurchaseConfirmation asks a cardholder to confirm a pending purchase.
	KindPurchaseConfirmation = "purchase_confirmation"
)

var (
	// ErrDeliveryFailed wraps every transport failure reported by a Notifier.
	ErrDeliveryFailed = errors.New("notification: delivery failed")
	// ErrInvalidConfig is returned when a notifier is built with missing settings.
	ErrInvalidConfig = errors.New("notification: invalid config")
	// ErrInvalidMessage is returned for messages without destination or subject.
	ErrInvalidMessage = errors.New("notification: invalid message")
)

// Message describes a notification payload. Body is rendered HTML.
type Message struct {
	Kind        string
	Destination string
	Subject     string
	Body        string
}

// Validate checks the fields every transport needs.
func (m Message) Validate() error {
	if m.Destination == "" {
		return errors.Join(ErrInvalidMessage, errors.New("destination is required"))
	}
	if m.Subject == "" {
		return errors.Join(ErrInvalidMessage, errors.New("subject is required"))
	}
	return nil
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message metadata to the structured logger. The body is
// not logged since it links to a live token.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if err := message.Validate(); err != nil {
		return err
	}
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("subject", message.Subject),
		slog.Int("body_bytes", len(message.Body)),
	)
	return nil
}
