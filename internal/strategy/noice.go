package strategy

import (
	"fmt"
	"log"
	"math"

	"github.com/amirphl/noice-trader/internal/candle"
	"github.com/amirphl/noice-trader/internal/indicator"
)

// NoiceParams tunes the multi-indicator noice strategy.
type NoiceParams struct {
	EMAFast             int
	EMASlow             int
	RSIPeriod           int
	RSIOversold         float64
	RSIOverbought       float64
	MACDFast            int
	MACDSlow            int
	MACDSignal          int
	BBPeriod            int
	BBStdDev            float64
	ATRPeriod           int
	VolumePeriod        int
	MinVolumeMultiplier float64
	StochPeriodK        int
	StochPeriodD        int
}

// DefaultNoiceParams returns the tuning the strategy ships with.
func DefaultNoiceParams() NoiceParams {
	return NoiceParams{
		EMAFast:             9,
		EMASlow:             21,
		RSIPeriod:           14,
		RSIOversold:         30,
		RSIOverbought:       70,
		MACDFast:            12,
		MACDSlow:            26,
		MACDSignal:          9,
		BBPeriod:            20,
		BBStdDev:            2.0,
		ATRPeriod:           14,
		VolumePeriod:        20,
		MinVolumeMultiplier: 1.5,
		StochPeriodK:        14,
		StochPeriodD:        3,
	}
}

// Noice combines EMA trend, RSI, MACD crossover, Bollinger Bands,
// Stochastic, and volume confirmation into a scored entry decision with
// ATR-derived protective levels.
type Noice struct {
	base
	tuning NoiceParams
}

// NewNoice creates the noice strategy for one symbol.
func NewNoice(symbol string, params Params) *Noice {
	return &Noice{
		base:   newBase(symbol, params),
		tuning: DefaultNoiceParams(),
	}
}

func (n *Noice) Name() string   { return "noice" }
func (n *Noice) Symbol() string { return n.symbol }

// RequiredHistory returns the minimum candles needed before scores are
// meaningful, the slowest lookback plus a warm-up buffer.
func (n *Noice) RequiredHistory() int {
	required := n.tuning.EMASlow
	for _, p := range []int{n.tuning.MACDSlow, n.tuning.BBPeriod, n.tuning.ATRPeriod, n.tuning.VolumePeriod, n.tuning.StochPeriodK} {
		if p > required {
			required = p
		}
	}
	return required + 10
}

// Update feeds one candle in and returns a signal when the score clears the
// confidence bar, at most once per rate-limit interval.
func (n *Noice) Update(c candle.Candle) *Signal {
	if err := c.Validate(); err != nil {
		log.Printf("NoiceStrategy | Skipping invalid candle: %v", err)
		return nil
	}
	n.push(c, n.RequiredHistory())

	if !n.warm(n.RequiredHistory()) {
		return nil
	}
	if n.rateLimited() {
		return nil
	}

	snap, ok := n.compute()
	if !ok {
		return nil
	}

	// Entries require above-average volume; a quiet tape produces nothing.
	if snap.volumeRatio < n.tuning.MinVolumeMultiplier {
		return nil
	}

	bullish := n.bullishScore(snap)
	bearish := n.bearishScore(snap)

	if bullish >= n.params.MinConfidence {
		return n.emit(n.entrySignal(Buy, snap, bullish))
	}
	if bearish >= n.params.MinConfidence && n.params.EnableShorts {
		return n.emit(n.entrySignal(Sell, snap, bearish))
	}
	return nil
}

// snapshot is the latest and previous indicator values the scorers read.
type noiceSnapshot struct {
	candle      candle.Candle
	prevClose   float64
	emaFast     float64
	emaSlow     float64
	rsi         float64
	macd        float64
	macdSignal  float64
	prevMACD    float64
	prevSignal  float64
	bbUpper     float64
	bbMiddle    float64
	bbLower     float64
	stochK      float64
	stochD      float64
	atr         float64
	volumeRatio float64
}

func (n *Noice) compute() (noiceSnapshot, bool) {
	closes := n.closes()
	volumes := n.volumes()
	last := len(closes) - 1

	emaFast := indicator.CalculateEMA(closes, n.tuning.EMAFast)
	emaSlow := indicator.CalculateEMA(closes, n.tuning.EMASlow)
	rsi := indicator.CalculateRSI(closes, n.tuning.RSIPeriod)
	macd := indicator.CalculateMACD(closes, n.tuning.MACDFast, n.tuning.MACDSlow, n.tuning.MACDSignal)
	bb := indicator.CalculateBollingerBands(closes, n.tuning.BBPeriod, n.tuning.BBStdDev)
	atr := indicator.CalculateATR(n.buffer, n.tuning.ATRPeriod)
	volSMA := indicator.CalculateSMA(volumes, n.tuning.VolumePeriod)
	stoch := indicator.CalculateStochastic(n.buffer, n.tuning.StochPeriodK, n.tuning.StochPeriodD)

	if emaFast == nil || emaSlow == nil || rsi == nil || macd == nil || bb == nil || atr == nil || volSMA == nil || stoch == nil {
		return noiceSnapshot{}, false
	}
	if math.IsNaN(rsi[last]) || math.IsNaN(bb.Middle[last]) || math.IsNaN(volSMA[last]) || math.IsNaN(stoch.D[last]) || volSMA[last] == 0 {
		return noiceSnapshot{}, false
	}

	return noiceSnapshot{
		candle:      n.buffer[last],
		prevClose:   closes[last-1],
		emaFast:     emaFast[last],
		emaSlow:     emaSlow[last],
		rsi:         rsi[last],
		macd:        macd.MACD[last],
		macdSignal:  macd.Signal[last],
		prevMACD:    macd.MACD[last-1],
		prevSignal:  macd.Signal[last-1],
		bbUpper:     bb.Upper[last],
		bbMiddle:    bb.Middle[last],
		bbLower:     bb.Lower[last],
		stochK:      stoch.K[last],
		stochD:      stoch.D[last],
		atr:         atr[last],
		volumeRatio: volumes[last] / volSMA[last],
	}, true
}

// bullishScore weighs six long conditions into [0,1].
func (n *Noice) bullishScore(s noiceSnapshot) float64 {
	score := 0.0
	const maxScore = 6.0

	if s.candle.Close > s.emaFast && s.emaFast > s.emaSlow {
		score += 1.0
	}

	if s.rsi < n.tuning.RSIOversold {
		score += 1.0
	} else if s.rsi < 45 {
		score += 0.5
	}

	// A fresh MACD crossover weighs more than an established one.
	if s.macd > s.macdSignal && s.prevMACD <= s.prevSignal {
		score += 1.5
	} else if s.macd > s.macdSignal {
		score += 0.5
	}

	if s.candle.Close <= s.bbLower {
		score += 1.0
	} else if s.candle.Close < s.bbMiddle {
		score += 0.3
	}

	if s.stochK < 20 && s.stochD < 20 {
		score += 1.0
	} else if s.stochK < 50 {
		score += 0.3
	}

	if s.candle.Close > s.prevClose {
		score += 0.5
	}

	return math.Min(score/maxScore, 1.0)
}

// bearishScore mirrors bullishScore for short entries.
func (n *Noice) bearishScore(s noiceSnapshot) float64 {
	score := 0.0
	const maxScore = 6.0

	if s.candle.Close < s.emaFast && s.emaFast < s.emaSlow {
		score += 1.0
	}

	if s.rsi > n.tuning.RSIOverbought {
		score += 1.0
	} else if s.rsi > 55 {
		score += 0.5
	}

	if s.macd < s.macdSignal && s.prevMACD >= s.prevSignal {
		score += 1.5
	} else if s.macd < s.macdSignal {
		score += 0.5
	}

	if s.candle.Close >= s.bbUpper {
		score += 1.0
	} else if s.candle.Close > s.bbMiddle {
		score += 0.3
	}

	if s.stochK > 80 && s.stochD > 80 {
		score += 1.0
	} else if s.stochK > 50 {
		score += 0.3
	}

	if s.candle.Close < s.prevClose {
		score += 0.5
	}

	return math.Min(score/maxScore, 1.0)
}

func (n *Noice) entrySignal(kind Kind, s noiceSnapshot, confidence float64) *Signal {
	entry := s.candle.Close
	side := Long
	if kind == Sell {
		side = Short
	}
	stop := n.stopLoss(entry, side, s.atr)
	tp1, tp2 := n.takeProfits(entry, side, stop)

	reason := formatReason(
		fmt.Sprintf("EMA %s: close=%.6f fast=%.6f slow=%.6f", side, entry, s.emaFast, s.emaSlow),
		fmt.Sprintf("RSI: %.1f", s.rsi),
		fmt.Sprintf("MACD: %.6f vs %.6f", s.macd, s.macdSignal),
		fmt.Sprintf("Volume ratio: %.2f", s.volumeRatio),
	)

	return &Signal{
		Kind:        kind,
		Symbol:      n.symbol,
		Price:       entry,
		StopLoss:    stop,
		TakeProfit1: tp1,
		TakeProfit2: tp2,
		Confidence:  confidence,
		Reason:      reason,
		Time:        n.now(),
		Metadata: map[string]any{
			"strategy":    n.Name(),
			"ema_fast":    s.emaFast,
			"ema_slow":    s.emaSlow,
			"rsi":         s.rsi,
			"macd":        s.macd,
			"macd_signal": s.macdSignal,
			"atr":         s.atr,
		},
	}
}
