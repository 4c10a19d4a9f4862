package strategy

import (
	"strings"
	"time"

	"github.com/amirphl/noice-trader/internal/candle"
)

// Strategy is the interface for all trading strategies. Update is called
// once per new candle and returns at most one signal; it never returns an
// error for malformed input, it returns nil instead. RequiredHistory is the
// minimum candle count before signals are meaningful.
type Strategy interface {
	Name() string
	Symbol() string
	RequiredHistory() int
	Update(c candle.Candle) *Signal
}

// Params are the knobs shared by all strategies.
type Params struct {
	MinConfidence     float64
	MaxSignalsPerHour int
	EnableShorts      bool
	RiskReward        float64
}

// DefaultParams returns the parameter set the strategies ship with.
func DefaultParams() Params {
	return Params{
		MinConfidence:     0.75,
		MaxSignalsPerHour: 5,
		EnableShorts:      false,
		RiskReward:        2.0,
	}
}

// New builds the strategy selected by name. Unknown names fall back to the
// noice strategy.
func New(name, symbol string, params Params) Strategy {
	switch name {
	case "momentum":
		return NewMomentum(symbol, params)
	case "noice":
		return NewNoice(symbol, params)
	default:
		return NewNoice(symbol, params)
	}
}

// base carries the buffer, rate limiting, and protective-level math shared
// by concrete strategies. Strategies are single-goroutine by contract (one
// Update per candle from the engine), so no locking here.
type base struct {
	symbol string
	params Params

	buffer       []candle.Candle
	lastSignalAt time.Time
	history      []Signal

	now func() time.Time
}

func newBase(symbol string, params Params) base {
	return base{
		symbol: symbol,
		params: params,
		now:    time.Now,
	}
}

// push appends a candle to the buffer, dropping the oldest once the buffer
// doubles the required history (memory bound, matches the window semantics:
// a same-timestamp refresh replaces the newest entry).
func (b *base) push(c candle.Candle, required int) {
	if n := len(b.buffer); n > 0 && b.buffer[n-1].Timestamp.Equal(c.Timestamp) {
		b.buffer[n-1] = c
		return
	}
	b.buffer = append(b.buffer, c)
	maxLen := required * 2
	if maxLen < 500 {
		maxLen = 500
	}
	if len(b.buffer) > maxLen {
		b.buffer = b.buffer[len(b.buffer)-maxLen:]
	}
}

// warm reports whether enough candles are buffered to compute indicators.
func (b *base) warm(required int) bool {
	return len(b.buffer) >= required
}

// rateLimited enforces the per-hour signal budget internally; the engine
// does not rate-limit on top of this.
func (b *base) rateLimited() bool {
	if b.lastSignalAt.IsZero() || b.params.MaxSignalsPerHour <= 0 {
		return false
	}
	minInterval := time.Hour / time.Duration(b.params.MaxSignalsPerHour)
	return b.now().Sub(b.lastSignalAt) < minInterval
}

// emit gates a candidate signal on confidence, records it, and arms the
// rate limiter. Returns nil when the signal does not clear the bar.
func (b *base) emit(sig *Signal) *Signal {
	if sig == nil || sig.Confidence < b.params.MinConfidence {
		return nil
	}
	b.lastSignalAt = b.now()
	b.history = append(b.history, *sig)
	if len(b.history) > 100 {
		b.history = b.history[len(b.history)-100:]
	}
	return sig
}

// closes returns the close prices of the buffered candles.
func (b *base) closes() []float64 {
	out := make([]float64, len(b.buffer))
	for i, c := range b.buffer {
		out[i] = c.Close
	}
	return out
}

// volumes returns the volumes of the buffered candles.
func (b *base) volumes() []float64 {
	out := make([]float64, len(b.buffer))
	for i, c := range b.buffer {
		out[i] = c.Volume
	}
	return out
}

// stopLoss places the stop at 2x ATR from entry, or 2% when no ATR is
// available.
func (b *base) stopLoss(entry float64, side Side, atr float64) float64 {
	if atr > 0 {
		const multiplier = 2.0
		if side == Long {
			return entry - atr*multiplier
		}
		return entry + atr*multiplier
	}
	const stopPct = 0.02
	if side == Long {
		return entry * (1 - stopPct)
	}
	return entry * (1 + stopPct)
}

// takeProfits derives TP1 at the configured risk-reward multiple of the
// stop distance and TP2 at twice that.
func (b *base) takeProfits(entry float64, side Side, stopLoss float64) (float64, float64) {
	risk := entry - stopLoss
	if risk < 0 {
		risk = -risk
	}
	if side == Long {
		return entry + risk*b.params.RiskReward, entry + risk*b.params.RiskReward*2
	}
	return entry - risk*b.params.RiskReward, entry - risk*b.params.RiskReward*2
}

// Stats summarizes the signals this strategy has emitted.
func (b *base) Stats() map[string]any {
	var buys, sells int
	var confSum float64
	for _, s := range b.history {
		switch s.Kind {
		case Buy:
			buys++
		case Sell:
			sells++
		}
		confSum += s.Confidence
	}
	avg := 0.0
	if len(b.history) > 0 {
		avg = confSum / float64(len(b.history))
	}
	return map[string]any{
		"total_signals":  len(b.history),
		"buy_signals":    buys,
		"sell_signals":   sells,
		"avg_confidence": avg,
	}
}

func formatReason(parts ...string) string {
	return strings.Join(parts, " | ")
}
