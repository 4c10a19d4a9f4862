package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type txKey struct{}

// WithTransaction adds a transaction to the context.
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or nil if not present.
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Postgres persists events in a trade_events table.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection and ensures the schema exists.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	if err := p.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS trade_events (
		id UUID PRIMARY KEY,
		time TIMESTAMPTZ NOT NULL,
		action TEXT NOT NULL,
		symbol TEXT NOT NULL,
		position JSONB,
		signal JSONB,
		detail TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_trade_events_action_time ON trade_events (action, time);
	CREATE INDEX IF NOT EXISTS idx_trade_events_symbol_time ON trade_events (symbol, time);`)
	return err
}

// executeWithTransaction uses the transaction from context when present,
// otherwise wraps fn in its own transaction.
func (p *Postgres) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}
	return nil
}

func (p *Postgres) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

// LogEvent appends one event to the ledger.
func (p *Postgres) LogEvent(ctx context.Context, event Event) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		position, _ := json.Marshal(event.Position)
		signal, _ := json.Marshal(event.Signal)
		_, err := tx.ExecContext(ctx, `
		INSERT INTO trade_events (id, time, action, symbol, position, signal, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING`,
			event.ID, event.Time.UTC(), event.Action, event.Symbol, position, signal, event.Detail)
		if err != nil {
			return fmt.Errorf("failed to log event %s: %w", event.ID, err)
		}
		return nil
	})
}

// Events returns events of the given action within [start, end], oldest
// first. An empty action matches everything.
func (p *Postgres) Events(ctx context.Context, action string, start, end time.Time) ([]Event, error) {
	query := `SELECT id, time, action, symbol, position, signal, detail FROM trade_events
		WHERE time >= $1 AND time <= $2 ORDER BY time ASC`
	args := []any{start.UTC(), end.UTC()}
	if action != "" {
		query = `SELECT id, time, action, symbol, position, signal, detail FROM trade_events
			WHERE action = $1 AND time >= $2 AND time <= $3 ORDER BY time ASC`
		args = []any{action, start.UTC(), end.UTC()}
	}

	rows, err := p.queryWithTransaction(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var position, signal []byte
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Time, &e.Action, &e.Symbol, &position, &signal, &detail); err != nil {
			return nil, err
		}
		json.Unmarshal(position, &e.Position)
		json.Unmarshal(signal, &e.Signal)
		e.Detail = detail.String
		e.Time = e.Time.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteEvents removes events of the given action older than the cutoff.
func (p *Postgres) DeleteEvents(ctx context.Context, action string, before time.Time) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM trade_events WHERE action=$1 AND time < $2`, action, before.UTC())
		if err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		return nil
	})
}
