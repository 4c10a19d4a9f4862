// Package notifier delivers operational alerts for trade events.
package notifier

import (
	"fmt"
	"log"
	"time"

	"github.com/amirphl/noice-trader/internal/engine"
)

// Notifier sends a human-readable alert.
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
}

// Noop discards every message. Used when no alert channel is configured.
type Noop struct{}

func (Noop) Send(string) error          { return nil }
func (Noop) SendWithRetry(string) error { return nil }

// Callback adapts a Notifier into an engine event callback. Delivery runs
// on its own goroutine so a slow alert channel never stalls trading.
func Callback(n Notifier) engine.EventCallback {
	return func(ev engine.TradeEvent) {
		msg := FormatEvent(ev)
		go func() {
			if err := n.SendWithRetry(msg); err != nil {
				log.Printf("Notifier | Failed to deliver alert for %s: %v", ev.ID, err)
			}
		}()
	}
}

// FormatEvent renders a trade event as an alert message.
func FormatEvent(ev engine.TradeEvent) string {
	switch ev.Action {
	case engine.ActionFeedOutage:
		return fmt.Sprintf("⚠️ Feed outage for %s: %s", ev.Symbol, ev.Detail)
	case engine.ActionOpenPosition:
		return fmt.Sprintf("📈 Opened %v %s qty=%v entry=%v stop=%v",
			ev.Position["side"], ev.Symbol, ev.Position["quantity"],
			ev.Position["entry_price"], ev.Position["stop_loss"])
	default:
		return fmt.Sprintf("📉 %s for %s, realized=%v remaining=%v",
			ev.Action, ev.Symbol, ev.Position["realized_pnl"], ev.Position["remaining_quantity"])
	}
}

const (
	retryAttempts = 3
	retryDelay    = 2 * time.Second
)

// sendWithRetry retries transient delivery failures a few times.
func sendWithRetry(send func(string) error, msg string) error {
	var err error
	for i := 0; i < retryAttempts; i++ {
		if err = send(msg); err == nil {
			return nil
		}
		time.Sleep(retryDelay)
	}
	return fmt.Errorf("notification failed after %d attempts: %w", retryAttempts, err)
}
