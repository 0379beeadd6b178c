package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `CREATE TABLE IF NOT EXISTS purchase_events (
	id           UUID PRIMARY KEY,
	kind         TEXT NOT NULL,
	token        TEXT NOT NULL,
	card_last4   TEXT NOT NULL,
	amount       NUMERIC(18, 2) NOT NULL,
	installments INT NOT NULL,
	detail       TEXT NOT NULL DEFAULT '',
	occurred_at  TIMESTAMPTZ NOT NULL
)`

// PostgresRecorder persists lifecycle events to PostgreSQL.
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// NewPostgresRecorder prepares a recorder ensuring the events table exists.
func NewPostgresRecorder(ctx context.Context, db *pgxpool.Pool) (*PostgresRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure purchase_events table: %w", err)
	}
	return &PostgresRecorder{db: db}, nil
}

// Record inserts a single event.
func (r *PostgresRecorder) Record(ctx context.Context, event Event) error {
	id := uuid.New()
	if event.ID != "" {
		parsed, err := uuid.Parse(event.ID)
		if err != nil {
			return fmt.Errorf("event id: %w", err)
		}
		id = parsed
	}

	const query = `INSERT INTO purchase_events (id, kind, token, card_last4, amount, installments, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.Exec(ctx, query, id, string(event.Kind), event.Token, event.CardLast4,
		event.Amount.StringFixed(2), event.Installments, event.Detail, event.OccurredAt); err != nil {
		return fmt.Errorf("insert purchase event: %w", err)
	}
	return nil
}

// List returns up to limit events, newest first.
func (r *PostgresRecorder) List(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `SELECT id, kind, token, card_last4, amount::text, installments, detail, occurred_at
		FROM purchase_events ORDER BY occurred_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			id     uuid.UUID
			kind   string
			amount string
		)
		if err := rows.Scan(&id, &kind, &e.Token, &e.CardLast4, &amount, &e.Installments, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.Kind = Kind(kind)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
