package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/noice-trader/internal/candle"
	"github.com/amirphl/noice-trader/internal/feed"
	"github.com/amirphl/noice-trader/internal/risk"
	"github.com/amirphl/noice-trader/internal/strategy"
)

// scripted returns pre-queued signals, one per Update call.
type scripted struct {
	symbol  string
	signals []*strategy.Signal
	updates int
}

func (s *scripted) Name() string         { return "scripted" }
func (s *scripted) Symbol() string       { return s.symbol }
func (s *scripted) RequiredHistory() int { return 1 }

func (s *scripted) Update(candle.Candle) *strategy.Signal {
	s.updates++
	if len(s.signals) == 0 {
		return nil
	}
	sig := s.signals[0]
	s.signals = s.signals[1:]
	return sig
}

func buySignal() *strategy.Signal {
	return &strategy.Signal{
		Kind:        strategy.Buy,
		Symbol:      "BTCUSDT",
		Price:       100,
		StopLoss:    95,
		TakeProfit1: 110,
		TakeProfit2: 120,
		Confidence:  0.9,
		Time:        time.Now(),
		Metadata:    map[string]any{"strategy": "scripted"},
	}
}

func candleAt(close float64) candle.Candle {
	return candle.Candle{
		Timestamp: time.Now().UTC().Truncate(time.Minute),
		Open:      close, High: close, Low: close, Close: close, Volume: 1,
		Symbol: "BTCUSDT", Source: "mexc",
	}
}

func newTestEngine(t *testing.T, tradingEnabled bool, signals ...*strategy.Signal) (*Engine, *risk.Manager, *[]TradeEvent) {
	t.Helper()
	h := feed.NewHandler("BTCUSDT", 10)
	strat := &scripted{symbol: "BTCUSDT", signals: signals}
	mgr := risk.NewManager(risk.DefaultConfig(10000))
	e := New(h, strat, mgr, tradingEnabled)

	events := &[]TradeEvent{}
	e.RegisterCallback(func(ev TradeEvent) { *events = append(*events, ev) })
	return e, mgr, events
}

func actions(events []TradeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Action
	}
	return out
}

func TestEngineOpensPositionFromSignal(t *testing.T) {
	e, mgr, events := newTestEngine(t, true, buySignal())

	e.OnCandle(candleAt(100))

	pos, ok := mgr.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, risk.StatusOpen, pos.Status)
	assert.Equal(t, 100.0, pos.EntryPrice)
	// 10000 * 0.02 / 5 = 40 units.
	assert.Equal(t, 40.0, pos.Quantity)
	assert.Equal(t, "scripted", pos.Strategy)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, ActionOpenPosition, ev.Action)
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.NotEmpty(t, ev.ID)
	assert.NotNil(t, ev.Signal)
	assert.Equal(t, "OPEN", ev.Position["status"])
}

func TestEngineDisabledTradingStillGeneratesSignals(t *testing.T) {
	e, mgr, events := newTestEngine(t, false, buySignal())

	e.OnCandle(candleAt(100))

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok, "signal must not be routed while trading is disabled")
	assert.Empty(t, *events)

	status := e.Status()
	assert.Equal(t, int64(1), status["signals_generated"])
	assert.Equal(t, int64(0), status["signals_executed"])
}

func TestEngineDisabledTradingStillMonitorsOpenPosition(t *testing.T) {
	e, mgr, events := newTestEngine(t, true, buySignal())

	e.OnCandle(candleAt(100))
	require.Len(t, *events, 1)

	e.SetTradingEnabled(false)
	e.OnTicker(candle.Ticker{Symbol: "BTCUSDT", Price: 94, Timestamp: time.Now()})

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok, "stop must still fire with trading disabled")
	assert.Equal(t, []string{ActionOpenPosition, "stop_loss"}, actions(*events))
}

func TestEngineRejectsSignalBelowRiskReward(t *testing.T) {
	sig := buySignal()
	sig.TakeProfit1 = 101 // reward 1 vs risk 5
	e, mgr, events := newTestEngine(t, true, sig)

	e.OnCandle(candleAt(100))

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Empty(t, *events)
	assert.Equal(t, int64(1), e.Status()["signals_rejected"])
}

func TestEnginePartialThenBreakevenStop(t *testing.T) {
	e, mgr, events := newTestEngine(t, true, buySignal())

	e.OnCandle(candleAt(100))
	e.OnTicker(candle.Ticker{Symbol: "BTCUSDT", Price: 110, Timestamp: time.Now()})

	pos, ok := mgr.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, risk.StatusPartial, pos.Status)
	assert.Equal(t, 20.0, pos.RemainingQuantity)
	assert.Equal(t, 100.0, pos.StopLoss, "stop moves to breakeven after TP1")

	// The breakeven stop fires with zero P&L on the remaining half.
	e.OnTicker(candle.Ticker{Symbol: "BTCUSDT", Price: 99, Timestamp: time.Now()})

	_, ok = mgr.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, []string{ActionOpenPosition, "take_profit_1", "stop_loss"}, actions(*events))
	// Only TP1's half realized profit: 20 * 10.
	assert.InDelta(t, 10200.0, mgr.CurrentCapital(), 1e-9)
}

func TestEngineFullRideThroughTP2(t *testing.T) {
	e, mgr, events := newTestEngine(t, true, buySignal())

	e.OnCandle(candleAt(100))
	e.OnTicker(candle.Ticker{Symbol: "BTCUSDT", Price: 110, Timestamp: time.Now()})
	e.OnTicker(candle.Ticker{Symbol: "BTCUSDT", Price: 120, Timestamp: time.Now()})

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, []string{ActionOpenPosition, "take_profit_1", "take_profit_2"}, actions(*events))
	// 20*10 at TP1 plus 20*20 at TP2.
	assert.InDelta(t, 10600.0, mgr.CurrentCapital(), 1e-9)
}

func TestEngineStrategyExitClosesPosition(t *testing.T) {
	exit := &strategy.Signal{Kind: strategy.CloseLong, Symbol: "BTCUSDT", Price: 102, Confidence: 0.9, Time: time.Now()}
	e, mgr, events := newTestEngine(t, true, buySignal(), exit)

	e.OnCandle(candleAt(100))
	e.OnCandle(candleAt(102))

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Equal(t, []string{ActionOpenPosition, ActionManualClose}, actions(*events))
	// Strategy exits fill at the signal price.
	assert.InDelta(t, 10080.0, mgr.CurrentCapital(), 1e-9)
}

func TestEngineRoutesSignalBeforeApplyingCandleClose(t *testing.T) {
	// Second candle gaps through the stop while the strategy emits a fresh
	// BUY for the same symbol: the BUY is rejected as a duplicate first,
	// then the stop fires. No same-candle re-entry.
	e, mgr, events := newTestEngine(t, true, buySignal(), buySignal())

	e.OnCandle(candleAt(100))
	e.OnCandle(candleAt(94))

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok, "symbol must be flat after the stop, not re-entered")
	assert.Equal(t, []string{ActionOpenPosition, "stop_loss"}, actions(*events))

	status := e.Status()
	assert.Equal(t, int64(2), status["signals_generated"])
	assert.Equal(t, int64(1), status["signals_executed"])
	assert.Equal(t, int64(1), status["signals_rejected"])
}

func TestEngineRejectsInvalidSignalBeforeSizing(t *testing.T) {
	degenerate := buySignal()
	degenerate.StopLoss = degenerate.Price // stop equal to entry
	negative := buySignal()
	negative.Price = -1

	e, mgr, events := newTestEngine(t, true, degenerate, negative)

	e.OnCandle(candleAt(100))
	e.OnCandle(candleAt(100))

	_, ok := mgr.Position("BTCUSDT")
	assert.False(t, ok)
	assert.Empty(t, *events)
	assert.Equal(t, int64(2), e.Status()["signals_rejected"])
}

func TestEngineCallbackPanicIsIsolated(t *testing.T) {
	e, mgr, events := newTestEngine(t, true, buySignal())
	e.RegisterCallback(func(TradeEvent) { panic("boom") })

	assert.NotPanics(t, func() { e.OnCandle(candleAt(100)) })

	_, ok := mgr.Position("BTCUSDT")
	assert.True(t, ok, "trading continues despite a panicking collaborator")
	assert.Len(t, *events, 1)
}

func TestEngineRemoveCallback(t *testing.T) {
	e, _, events := newTestEngine(t, true, buySignal())

	var extra int
	id := e.RegisterCallback(func(TradeEvent) { extra++ })
	e.RemoveCallback(id)

	e.OnCandle(candleAt(100))
	assert.Len(t, *events, 1)
	assert.Equal(t, 0, extra)
}

func TestEngineForceCloseAll(t *testing.T) {
	e, mgr, events := newTestEngine(t, true, buySignal())

	e.OnCandle(candleAt(100))
	require.Len(t, mgr.OpenPositions(), 1)

	closed := e.ForceCloseAll()
	assert.Equal(t, 1, closed)
	assert.Empty(t, mgr.OpenPositions())
	assert.Equal(t, []string{ActionOpenPosition, ActionManualClose}, actions(*events))

	assert.Equal(t, 0, e.ForceCloseAll())
}

func TestEngineFeedOutageEventPublishedOnce(t *testing.T) {
	e, _, events := newTestEngine(t, true)

	// Neither feed client is connected, so health reports an outage.
	e.checkFeedHealth()
	e.checkFeedHealth()

	require.Len(t, *events, 1)
	assert.Equal(t, ActionFeedOutage, (*events)[0].Action)
	assert.NotEmpty(t, (*events)[0].Detail)
}

func TestEngineStopFromAnotherGoroutine(t *testing.T) {
	e, _, _ := newTestEngine(t, true)

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background()) }()

	// Stop races Start's consumer registration, as it does when a signal
	// handler shuts the process down.
	time.Sleep(10 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestEngineStatus(t *testing.T) {
	e, _, _ := newTestEngine(t, true, buySignal())
	e.OnCandle(candleAt(100))

	status := e.Status()
	assert.Equal(t, "BTCUSDT", status["symbol"])
	assert.Equal(t, "scripted", status["strategy"])
	assert.Equal(t, true, status["trading_enabled"])
	assert.Equal(t, int64(1), status["signals_generated"])
	assert.Equal(t, int64(1), status["signals_executed"])
	assert.Contains(t, status, "feed")
	assert.Contains(t, status, "portfolio")
}
