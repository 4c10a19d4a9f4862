package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/noice-trader/internal/candle"
)

func entrySignal() *Signal {
	return &Signal{
		Kind:        Buy,
		Symbol:      "NOICEUSDT",
		Price:       1.0,
		StopLoss:    0.95,
		TakeProfit1: 1.10,
		TakeProfit2: 1.20,
		Confidence:  0.8,
		Time:        time.Now(),
	}
}

func TestSignalValidate(t *testing.T) {
	t.Run("valid entry", func(t *testing.T) {
		assert.NoError(t, entrySignal().Validate())
	})

	t.Run("empty symbol", func(t *testing.T) {
		s := entrySignal()
		s.Symbol = ""
		assert.Error(t, s.Validate())
	})

	t.Run("non-positive price", func(t *testing.T) {
		s := entrySignal()
		s.Price = 0
		assert.Error(t, s.Validate())
	})

	t.Run("stop equal to entry", func(t *testing.T) {
		s := entrySignal()
		s.StopLoss = s.Price
		assert.Error(t, s.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		s := entrySignal()
		s.Confidence = 1.5
		assert.Error(t, s.Validate())
	})

	t.Run("exit signals need only a symbol", func(t *testing.T) {
		s := &Signal{Kind: CloseLong, Symbol: "NOICEUSDT"}
		assert.NoError(t, s.Validate())
	})
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, Buy.IsEntry())
	assert.True(t, Sell.IsEntry())
	assert.False(t, Hold.IsEntry())
	assert.True(t, CloseLong.IsExit())
	assert.True(t, CloseShort.IsExit())
	assert.False(t, Buy.IsExit())

	assert.Equal(t, Short, (&Signal{Kind: Sell}).Side())
	assert.Equal(t, Long, (&Signal{Kind: Buy}).Side())
}

func TestBaseRateLimiting(t *testing.T) {
	b := newBase("NOICEUSDT", Params{MinConfidence: 0.5, MaxSignalsPerHour: 4})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	assert.False(t, b.rateLimited(), "never signaled yet")

	sig := entrySignal()
	require.NotNil(t, b.emit(sig))

	// 4 signals/hour = one per 15 minutes.
	now = now.Add(10 * time.Minute)
	assert.True(t, b.rateLimited())

	now = now.Add(6 * time.Minute)
	assert.False(t, b.rateLimited())
}

func TestBaseEmitConfidenceGate(t *testing.T) {
	b := newBase("NOICEUSDT", Params{MinConfidence: 0.75})

	low := entrySignal()
	low.Confidence = 0.6
	assert.Nil(t, b.emit(low))
	assert.True(t, b.lastSignalAt.IsZero(), "rejected signal must not arm the rate limiter")

	high := entrySignal()
	high.Confidence = 0.8
	assert.NotNil(t, b.emit(high))
	assert.False(t, b.lastSignalAt.IsZero())
}

func TestBasePushDedup(t *testing.T) {
	b := newBase("NOICEUSDT", DefaultParams())
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	c := candle.Candle{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1, Symbol: "NOICEUSDT"}
	b.push(c, 10)
	refresh := c
	refresh.Close = 2
	b.push(refresh, 10)

	require.Len(t, b.buffer, 1)
	assert.Equal(t, 2.0, b.buffer[0].Close)
}

func TestBaseProtectiveLevels(t *testing.T) {
	b := newBase("NOICEUSDT", Params{RiskReward: 2.0})

	t.Run("ATR stop", func(t *testing.T) {
		stop := b.stopLoss(100, Long, 1.0)
		assert.InDelta(t, 98, stop, 1e-9)

		stop = b.stopLoss(100, Short, 1.0)
		assert.InDelta(t, 102, stop, 1e-9)
	})

	t.Run("percent fallback without ATR", func(t *testing.T) {
		stop := b.stopLoss(100, Long, 0)
		assert.InDelta(t, 98, stop, 1e-9)
	})

	t.Run("take profits from stop distance", func(t *testing.T) {
		tp1, tp2 := b.takeProfits(100, Long, 98)
		assert.InDelta(t, 104, tp1, 1e-9)
		assert.InDelta(t, 108, tp2, 1e-9)

		tp1, tp2 = b.takeProfits(100, Short, 102)
		assert.InDelta(t, 96, tp1, 1e-9)
		assert.InDelta(t, 92, tp2, 1e-9)
	})
}

func TestNewSelectsStrategy(t *testing.T) {
	assert.Equal(t, "momentum", New("momentum", "NOICEUSDT", DefaultParams()).Name())
	assert.Equal(t, "noice", New("noice", "NOICEUSDT", DefaultParams()).Name())
	assert.Equal(t, "noice", New("unknown", "NOICEUSDT", DefaultParams()).Name())
}
