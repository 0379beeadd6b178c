package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind names a lifecycle event.
type Kind string

const (
	KindIssued             Kind = "issued"
	KindContactAttached    Kind = "contact_attached"
	KindNotificationFailed Kind = "notification_failed"
	KindConfirmed          Kind = "confirmed"
)

// Event captures one lifecycle transition. It never carries raw card data:
// only the last four digits and a token fingerprint.
type Event struct {
	ID           string
	Kind         Kind
	Token        string
	CardLast4    string
	Amount       decimal.Decimal
	Installments int
	Detail       string
	OccurredAt   time.Time
}

// Recorder defines the contract implemented by audit backends (e.g. Postgres).
type Recorder interface {
	Record(ctx context.Context, event Event) error
	List(ctx context.Context, limit int) ([]Event, error)
}
