// Package journal persists trade lifecycle events.
package journal

import (
	"context"
	"log"
	"time"

	"github.com/amirphl/noice-trader/internal/engine"
)

// Event is one journaled trade event.
type Event struct {
	ID       string
	Time     time.Time
	Action   string
	Symbol   string
	Position map[string]any
	Signal   map[string]any
	Detail   string
}

// Journal is the interface for the event ledger.
type Journal interface {
	LogEvent(ctx context.Context, event Event) error
	Events(ctx context.Context, action string, start, end time.Time) ([]Event, error)
}

// fromTradeEvent converts an engine event into its journal record.
func fromTradeEvent(ev engine.TradeEvent) Event {
	return Event{
		ID:       ev.ID,
		Time:     ev.Time,
		Action:   ev.Action,
		Symbol:   ev.Symbol,
		Position: ev.Position,
		Signal:   ev.Signal,
		Detail:   ev.Detail,
	}
}

// Callback adapts a Journal into an engine event callback. Persistence
// failures are logged, never propagated into the trading loop.
func Callback(ctx context.Context, j Journal) engine.EventCallback {
	return func(ev engine.TradeEvent) {
		if err := j.LogEvent(ctx, fromTradeEvent(ev)); err != nil {
			log.Printf("Journal | Failed to persist event %s (%s): %v", ev.ID, ev.Action, err)
		}
	}
}
