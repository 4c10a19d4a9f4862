package strategy

import (
	"fmt"
	"log"
	"math"

	"github.com/amirphl/noice-trader/internal/candle"
	"github.com/amirphl/noice-trader/internal/indicator"
)

// MomentumParams tunes the momentum strategy.
type MomentumParams struct {
	ROCPeriod      int
	MomentumPeriod int
	RSIPeriod      int
	VolumePeriod   int
	MinMomentum    float64
	StopLossPct    float64
	TakeProfitPct  float64
}

// DefaultMomentumParams returns the tuning the strategy ships with.
func DefaultMomentumParams() MomentumParams {
	return MomentumParams{
		ROCPeriod:      10,
		MomentumPeriod: 14,
		RSIPeriod:      14,
		VolumePeriod:   20,
		MinMomentum:    0.02,
		StopLossPct:    0.025,
		TakeProfitPct:  0.06,
	}
}

// Momentum enters long when price momentum is strong and accelerating, and
// emits CLOSE_LONG when the momentum it rode weakens or reverses.
type Momentum struct {
	base
	tuning MomentumParams
}

// NewMomentum creates the momentum strategy for one symbol.
func NewMomentum(symbol string, params Params) *Momentum {
	if params.MinConfidence > 0.65 {
		// Momentum confidence tops out lower than the scored noice strategy.
		params.MinConfidence = 0.65
	}
	return &Momentum{
		base:   newBase(symbol, params),
		tuning: DefaultMomentumParams(),
	}
}

func (m *Momentum) Name() string   { return "momentum" }
func (m *Momentum) Symbol() string { return m.symbol }

// RequiredHistory covers the slowest lookback plus the MACD tail.
func (m *Momentum) RequiredHistory() int {
	required := m.tuning.MomentumPeriod
	for _, p := range []int{m.tuning.ROCPeriod, m.tuning.RSIPeriod, m.tuning.VolumePeriod, 26} {
		if p > required {
			required = p
		}
	}
	return required + 10
}

// Update feeds one candle in and returns a BUY on strong accelerating
// momentum or a CLOSE_LONG when momentum stalls.
func (m *Momentum) Update(c candle.Candle) *Signal {
	if err := c.Validate(); err != nil {
		log.Printf("MomentumStrategy | Skipping invalid candle: %v", err)
		return nil
	}
	m.push(c, m.RequiredHistory())

	if !m.warm(m.RequiredHistory()) {
		return nil
	}
	if m.rateLimited() {
		return nil
	}

	closes := m.closes()
	volumes := m.volumes()
	last := len(closes) - 1

	rsi := indicator.CalculateRSI(closes, m.tuning.RSIPeriod)
	macd := indicator.CalculateMACD(closes, 12, 26, 9)
	volSMA := indicator.CalculateSMA(volumes, m.tuning.VolumePeriod)
	if rsi == nil || macd == nil || volSMA == nil || math.IsNaN(rsi[last]) || math.IsNaN(volSMA[last]) {
		return nil
	}

	// Normalized momentum over the lookback and its first difference.
	momentum := (closes[last] - closes[last-m.tuning.MomentumPeriod]) / closes[last]
	prevMomentum := (closes[last-1] - closes[last-1-m.tuning.MomentumPeriod]) / closes[last-1]
	accel := momentum - prevMomentum

	volumeMomentum := 0.0
	if volSMA[last] > 0 {
		volumeMomentum = (volumes[last] - volSMA[last]) / volSMA[last]
	}

	if m.hasBuyMomentum(momentum, accel, macd.Histogram[last], rsi[last]) {
		confidence := m.buyConfidence(momentum, accel, rsi[last], macd.Histogram[last], macd.Histogram[last-1], volumeMomentum)
		return m.emit(m.buySignal(c, momentum, rsi[last], confidence))
	}

	if m.hasSellMomentum(momentum, accel, macd.Histogram[last], rsi[last], rsi[last-1]) {
		confidence := m.sellConfidence(momentum, accel, rsi[last], rsi[last-1], macd.Histogram[last], macd.Histogram[last-1])
		return m.emit(m.closeSignal(c, momentum, confidence))
	}
	return nil
}

// hasBuyMomentum requires at least three of four strength conditions.
func (m *Momentum) hasBuyMomentum(momentum, accel, macdHist, rsi float64) bool {
	conditions := 0
	if momentum > m.tuning.MinMomentum {
		conditions++
	}
	if accel > 0 {
		conditions++
	}
	if macdHist > 0 {
		conditions++
	}
	if rsi > 50 && rsi < 75 {
		conditions++
	}
	return conditions >= 3
}

// hasSellMomentum requires at least three of four weakness conditions.
func (m *Momentum) hasSellMomentum(momentum, accel, macdHist, rsi, prevRSI float64) bool {
	conditions := 0
	if momentum < 0.005 {
		conditions++
	}
	if accel < 0 {
		conditions++
	}
	if macdHist < 0 {
		conditions++
	}
	if rsi < prevRSI {
		conditions++
	}
	return conditions >= 3
}

func (m *Momentum) buyConfidence(momentum, accel, rsi, macdHist, prevHist, volumeMomentum float64) float64 {
	confidence := 0.5
	if momentum > m.tuning.MinMomentum*2 {
		confidence += 0.15
	} else if momentum > m.tuning.MinMomentum {
		confidence += 0.1
	}
	if accel > 0.01 {
		confidence += 0.1
	}
	if rsi > 55 && rsi < 70 {
		confidence += 0.1
	}
	if macdHist > prevHist {
		confidence += 0.1
	}
	if volumeMomentum > 0.2 {
		confidence += 0.05
	}
	return math.Min(confidence, 1.0)
}

func (m *Momentum) sellConfidence(momentum, accel, rsi, prevRSI, macdHist, prevHist float64) float64 {
	confidence := 0.5
	if momentum < 0 {
		confidence += 0.2
	} else if momentum < m.tuning.MinMomentum*0.5 {
		confidence += 0.1
	}
	if accel < -0.01 {
		confidence += 0.15
	}
	if rsi-prevRSI < -5 {
		confidence += 0.1
	}
	if macdHist < prevHist {
		confidence += 0.1
	}
	return math.Min(confidence, 1.0)
}

func (m *Momentum) buySignal(c candle.Candle, momentum, rsi, confidence float64) *Signal {
	entry := c.Close
	stop := entry * (1 - m.tuning.StopLossPct)
	tp1 := entry * (1 + m.tuning.TakeProfitPct)
	tp2 := entry * (1 + m.tuning.TakeProfitPct*2)

	return &Signal{
		Kind:        Buy,
		Symbol:      m.symbol,
		Price:       entry,
		StopLoss:    stop,
		TakeProfit1: tp1,
		TakeProfit2: tp2,
		Confidence:  confidence,
		Reason:      formatReason(fmt.Sprintf("Momentum: %.4f", momentum), fmt.Sprintf("RSI: %.1f", rsi)),
		Time:        m.now(),
		Metadata: map[string]any{
			"strategy": m.Name(),
			"momentum": momentum,
			"rsi":      rsi,
		},
	}
}

func (m *Momentum) closeSignal(c candle.Candle, momentum, confidence float64) *Signal {
	return &Signal{
		Kind:       CloseLong,
		Symbol:     m.symbol,
		Price:      c.Close,
		Confidence: confidence,
		Reason:     formatReason(fmt.Sprintf("Momentum fading: %.4f", momentum)),
		Time:       m.now(),
		Metadata: map[string]any{
			"strategy": m.Name(),
			"momentum": momentum,
		},
	}
}
