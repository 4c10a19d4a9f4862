// Package feed
//
// Streaming market data. Each exchange client owns one websocket
// connection, normalizes vendor payloads into candle.Candle/candle.Ticker,
// and reconnects with exponential backoff. The Handler owns a primary and a
// backup client and fans normalized records out to registered consumers.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amirphl/noice-trader/internal/candle"
)

// CandleHandler receives every normalized candle from a client.
type CandleHandler func(c candle.Candle)

// TickerHandler receives every normalized ticker from a client.
type TickerHandler func(t candle.Ticker)

// ConnectionState represents the state of a client connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ErrStopped is returned by Connect after Stop has been called.
var ErrStopped = errors.New("feed client stopped")

// Client is a single-exchange streaming feed. Connect blocks until the
// stream is stopped, reconnecting internally on failure; Stop is idempotent
// and also cancels future connection attempts.
type Client interface {
	Name() string
	Connect(ctx context.Context) error
	Stop()
	IsConnected() bool
	Health() error
}

const (
	defaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 60 * time.Second
	readTimeout           = 30 * time.Second
	pingInterval          = 20 * time.Second
)

// connState is the shared connection bookkeeping embedded by both clients.
type connState struct {
	mu        sync.RWMutex
	state     ConnectionState
	healthErr error
	stopped   bool
	cancel    context.CancelFunc
}

func (s *connState) setState(state ConnectionState, err error) {
	s.mu.Lock()
	s.state = state
	s.healthErr = err
	s.mu.Unlock()
}

// IsConnected returns true if the stream is currently established.
func (s *connState) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == Connected
}

// Health returns the last connection error, if any.
func (s *connState) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthErr
}

// markStopped flags the client stopped and cancels any active session.
// Safe to call repeatedly and from outside the client's goroutine.
func (s *connState) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *connState) isStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// bindSession stores the cancel func for the current Connect call so Stop
// can unblock it. Returns false when the client is already stopped.
func (s *connState) bindSession(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.cancel = cancel
	return true
}

// sleepCtx waits for the delay or the context, whichever ends first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// nextDelay doubles the backoff up to the cap.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}
