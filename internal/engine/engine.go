// Package engine wires the feed, strategy, and risk manager into a running
// trading loop and publishes lifecycle events to registered collaborators.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amirphl/noice-trader/internal/candle"
	"github.com/amirphl/noice-trader/internal/feed"
	"github.com/amirphl/noice-trader/internal/risk"
	"github.com/amirphl/noice-trader/internal/strategy"
)

// Event action names beyond the risk manager's exit actions.
const (
	ActionOpenPosition = "open_position"
	ActionManualClose  = "manual_close"
	ActionFeedOutage   = "feed_outage"
)

// TradeEvent is one lifecycle event: a position opened or closed, or an
// operational alert. Position and Signal are flat snapshots safe to hand to
// any collaborator.
type TradeEvent struct {
	ID       string         `json:"id"`
	Action   string         `json:"action"`
	Symbol   string         `json:"symbol"`
	Position map[string]any `json:"position,omitempty"`
	Signal   map[string]any `json:"signal,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Time     time.Time      `json:"time"`
}

// EventCallback receives every trade event. Callbacks run on the engine's
// feed goroutine; slow work belongs in the callback's own goroutine.
type EventCallback func(TradeEvent)

const defaultBookkeepingInterval = 30 * time.Second

// Engine is the orchestrator. All trading state mutations happen on the
// feed's delivery goroutine; the engine's own mutex only guards callback
// registration and counters read from other goroutines.
type Engine struct {
	symbol string
	feed   *feed.Handler
	strat  strategy.Strategy
	risk   *risk.Manager

	mu             sync.RWMutex
	tradingEnabled bool
	running        bool
	startedAt      time.Time
	nextCallbackID int
	callbacks      map[int]EventCallback

	signalsGenerated int64
	signalsExecuted  int64
	signalsRejected  int64

	candleConsumer int
	tickerConsumer int

	bookkeepingInterval time.Duration
	feedDown            bool
}

// New creates an engine for one symbol. Trading starts in the given enabled
// state; when disabled, signals are still generated and logged but never
// routed to the risk manager.
func New(h *feed.Handler, strat strategy.Strategy, mgr *risk.Manager, tradingEnabled bool) *Engine {
	return &Engine{
		symbol:              h.Symbol(),
		feed:                h,
		strat:               strat,
		risk:                mgr,
		tradingEnabled:      tradingEnabled,
		callbacks:           make(map[int]EventCallback),
		bookkeepingInterval: defaultBookkeepingInterval,
	}
}

// Start registers the engine as a feed consumer, launches bookkeeping, and
// runs the feed. It blocks until Stop or context cancellation.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.startedAt = time.Now()
	e.mu.Unlock()

	candleConsumer := e.feed.RegisterCandleConsumer(e.OnCandle)
	tickerConsumer := e.feed.RegisterTickerConsumer(e.OnTicker)
	e.mu.Lock()
	e.candleConsumer = candleConsumer
	e.tickerConsumer = tickerConsumer
	e.mu.Unlock()

	log.Printf("Engine | Started for %s, strategy=%s, trading_enabled=%v",
		e.symbol, e.strat.Name(), e.TradingEnabled())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.bookkeeping(ctx)

	err := e.feed.Start(ctx)

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	return err
}

// Stop unregisters the consumers and stops the feed. Idempotent; safe from
// any goroutine.
func (e *Engine) Stop() {
	e.mu.RLock()
	candleConsumer, tickerConsumer := e.candleConsumer, e.tickerConsumer
	e.mu.RUnlock()

	e.feed.RemoveConsumer(candleConsumer)
	e.feed.RemoveConsumer(tickerConsumer)
	e.feed.Stop()
	log.Printf("Engine | Stopped for %s", e.symbol)
}

// OnCandle is the per-candle trading step: feed the strategy and route any
// signal first, then push the candle close through the open position. A
// candle that gaps through the stop while the strategy signals an entry on
// the same symbol rejects the entry as a duplicate and then stops out.
func (e *Engine) OnCandle(c candle.Candle) {
	if sig := e.strat.Update(c); sig != nil {
		e.handleSignal(sig)
	}
	e.applyPrice(c.Symbol, c.Close)
}

// OnTicker refreshes the open position between candles; stops and targets
// trigger on ticks too.
func (e *Engine) OnTicker(t candle.Ticker) {
	e.applyPrice(t.Symbol, t.Price)
}

// handleSignal routes one strategy signal through the risk gate.
func (e *Engine) handleSignal(sig *strategy.Signal) {
	e.mu.Lock()
	e.signalsGenerated++
	enabled := e.tradingEnabled
	e.mu.Unlock()

	log.Printf("Engine | Signal %s %s @ %.8f conf=%.2f: %s",
		sig.Kind, sig.Symbol, sig.Price, sig.Confidence, sig.Reason)

	if err := sig.Validate(); err != nil {
		e.mu.Lock()
		e.signalsRejected++
		e.mu.Unlock()
		log.Printf("Engine | Signal rejected for %s: %v", sig.Symbol, err)
		return
	}

	if !enabled {
		log.Printf("Engine | Trading disabled, signal not routed")
		return
	}

	switch {
	case sig.Kind.IsEntry():
		e.openFromSignal(sig)
	case sig.Kind.IsExit():
		e.closeFromSignal(sig)
	}
}

func (e *Engine) openFromSignal(sig *strategy.Signal) {
	ok, reason := e.risk.CanOpenPosition(sig)
	if !ok {
		e.mu.Lock()
		e.signalsRejected++
		e.mu.Unlock()
		log.Printf("Engine | Signal rejected for %s: %s", sig.Symbol, reason)
		return
	}

	quantity := e.risk.PositionSize(sig)
	if quantity <= 0 {
		e.mu.Lock()
		e.signalsRejected++
		e.mu.Unlock()
		log.Printf("Engine | Signal rejected for %s: computed size is zero", sig.Symbol)
		return
	}

	pos, err := e.risk.OpenPosition(sig, quantity)
	if err != nil {
		log.Printf("Engine | Failed to open position for %s: %v", sig.Symbol, err)
		return
	}

	e.mu.Lock()
	e.signalsExecuted++
	e.mu.Unlock()

	log.Printf("Engine | Opened %s %s qty=%.8f entry=%.8f stop=%.8f",
		pos.Side, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.StopLoss)
	e.publish(TradeEvent{
		ID:       uuid.NewString(),
		Action:   ActionOpenPosition,
		Symbol:   pos.Symbol,
		Position: pos.Snapshot(),
		Signal:   sig.Snapshot(),
		Time:     time.Now().UTC(),
	})
}

// closeFromSignal handles a strategy exit (CLOSE_LONG/CLOSE_SHORT) for a
// matching open position.
func (e *Engine) closeFromSignal(sig *strategy.Signal) {
	pos, ok := e.risk.Position(sig.Symbol)
	if !ok {
		return
	}
	if (sig.Kind == strategy.CloseLong && pos.Side != strategy.Long) ||
		(sig.Kind == strategy.CloseShort && pos.Side != strategy.Short) {
		return
	}

	// Strategy exits fill at the signal price.
	if sig.Price > 0 {
		e.risk.UpdatePosition(sig.Symbol, sig.Price)
	}
	closed, err := e.risk.ClosePosition(sig.Symbol, ActionManualClose, 1.0)
	if err != nil {
		log.Printf("Engine | Failed to close %s on strategy exit: %v", sig.Symbol, err)
		return
	}
	log.Printf("Engine | Closed %s on strategy exit, realized=%.8f", sig.Symbol, closed.RealizedPnL)
	e.publish(TradeEvent{
		ID:       uuid.NewString(),
		Action:   ActionManualClose,
		Symbol:   sig.Symbol,
		Position: closed.Snapshot(),
		Signal:   sig.Snapshot(),
		Time:     time.Now().UTC(),
	})
}

// applyPrice updates the symbol's position and executes whatever exit the
// update triggered. Position monitoring continues even when trading is
// disabled: an open position must always be able to exit.
func (e *Engine) applyPrice(symbol string, price float64) {
	action := e.risk.UpdatePosition(symbol, price)
	if action == risk.ExitNone {
		return
	}

	fraction := 1.0
	if action == risk.ExitTakeProfit1 {
		fraction = 0.5
	}

	pos, err := e.risk.ClosePosition(symbol, string(action), fraction)
	if err != nil {
		log.Printf("Engine | Failed to execute %s for %s: %v", action, symbol, err)
		return
	}

	log.Printf("Engine | %s for %s, realized=%.8f remaining=%.8f",
		action, symbol, pos.RealizedPnL, pos.RemainingQuantity)
	e.publish(TradeEvent{
		ID:       uuid.NewString(),
		Action:   string(action),
		Symbol:   symbol,
		Position: pos.Snapshot(),
		Time:     time.Now().UTC(),
	})
}

// RegisterCallback adds an event collaborator and returns a handle.
func (e *Engine) RegisterCallback(fn EventCallback) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextCallbackID++
	e.callbacks[e.nextCallbackID] = fn
	return e.nextCallbackID
}

// RemoveCallback deletes the callback with the given handle.
func (e *Engine) RemoveCallback(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.callbacks, id)
}

// publish delivers the event to every callback, isolating panics so one
// failing collaborator cannot halt trading.
func (e *Engine) publish(ev TradeEvent) {
	e.mu.RLock()
	callbacks := make([]EventCallback, 0, len(e.callbacks))
	for _, fn := range e.callbacks {
		callbacks = append(callbacks, fn)
	}
	e.mu.RUnlock()

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Engine | Event callback panicked: %v", r)
				}
			}()
			fn(ev)
		}()
	}
}

// SetTradingEnabled toggles signal routing at runtime. Monitoring and
// signal generation are unaffected.
func (e *Engine) SetTradingEnabled(enabled bool) {
	e.mu.Lock()
	e.tradingEnabled = enabled
	e.mu.Unlock()
	log.Printf("Engine | Trading enabled set to %v", enabled)
}

// TradingEnabled reports whether signals are routed to the risk manager.
func (e *Engine) TradingEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tradingEnabled
}

// ForceClosePosition closes the symbol's position at its last seen price.
func (e *Engine) ForceClosePosition(symbol string) (*risk.Position, error) {
	pos, err := e.risk.ClosePosition(symbol, ActionManualClose, 1.0)
	if err != nil {
		return nil, err
	}
	log.Printf("Engine | Force closed %s, realized=%.8f", symbol, pos.RealizedPnL)
	e.publish(TradeEvent{
		ID:       uuid.NewString(),
		Action:   ActionManualClose,
		Symbol:   symbol,
		Position: pos.Snapshot(),
		Time:     time.Now().UTC(),
	})
	return pos, nil
}

// ForceCloseAll closes every open position and returns the number closed.
func (e *Engine) ForceCloseAll() int {
	closed := 0
	for _, symbol := range e.risk.OpenSymbols() {
		if _, err := e.ForceClosePosition(symbol); err == nil {
			closed++
		}
	}
	return closed
}

// bookkeeping periodically checks feed health and logs the portfolio. A
// transition to an unhealthy feed publishes a feed_outage event so
// collaborators can alert.
func (e *Engine) bookkeeping(ctx context.Context) {
	ticker := time.NewTicker(e.bookkeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkFeedHealth()
			summary := e.risk.Summary()
			log.Printf("Engine | Portfolio capital=%.2f positions=%v risk=%.4f drawdown=%.4f",
				summary["current_capital"], summary["active_positions"],
				summary["portfolio_risk"], summary["current_drawdown"])
		}
	}
}

func (e *Engine) checkFeedHealth() {
	err := e.feed.Health()

	e.mu.Lock()
	wasDown := e.feedDown
	e.feedDown = err != nil
	e.mu.Unlock()

	if err != nil && !wasDown {
		log.Printf("Engine | Feed unhealthy: %v", err)
		e.publish(TradeEvent{
			ID:     uuid.NewString(),
			Action: ActionFeedOutage,
			Symbol: e.symbol,
			Detail: err.Error(),
			Time:   time.Now().UTC(),
		})
	}
	if err == nil && wasDown {
		log.Printf("Engine | Feed recovered")
	}
}

// Status returns a snapshot of engine, feed, and portfolio state.
func (e *Engine) Status() map[string]any {
	e.mu.RLock()
	status := map[string]any{
		"symbol":            e.symbol,
		"strategy":          e.strat.Name(),
		"running":           e.running,
		"trading_enabled":   e.tradingEnabled,
		"signals_generated": e.signalsGenerated,
		"signals_executed":  e.signalsExecuted,
		"signals_rejected":  e.signalsRejected,
	}
	if !e.startedAt.IsZero() {
		status["uptime"] = time.Since(e.startedAt).Round(time.Second).String()
	}
	e.mu.RUnlock()

	status["feed"] = e.feed.Status()
	status["portfolio"] = e.risk.Summary()
	return status
}
