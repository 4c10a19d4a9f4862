package indicator

import (
	"math"

	"github.com/amirphl/noice-trader/internal/candle"
)

// StochasticResult holds the results of stochastic oscillator calculation
type StochasticResult struct {
	K []float64 // %K line values
	D []float64 // %D line values
}

// CalculateStochastic calculates the Stochastic Oscillator:
// %K = 100 * (close - lowest_low) / (highest_high - lowest_low) over periodK,
// %D = SMA of %K over periodD. Indices before the first full period are NaN.
func CalculateStochastic(candles []candle.Candle, periodK, periodD int) *StochasticResult {
	if len(candles) < periodK || periodK <= 0 || periodD <= 0 {
		return nil
	}

	n := len(candles)
	k := make([]float64, n)
	for i := 0; i < periodK-1; i++ {
		k[i] = math.NaN()
	}

	for i := periodK - 1; i < n; i++ {
		start := i - (periodK - 1)
		lowest := candles[start].Low
		highest := candles[start].High
		for j := start + 1; j <= i; j++ {
			if candles[j].Low < lowest {
				lowest = candles[j].Low
			}
			if candles[j].High > highest {
				highest = candles[j].High
			}
		}
		if highest == lowest {
			// No range over the lookback, park %K in the middle.
			k[i] = 50.0
		} else {
			k[i] = 100.0 * (candles[i].Close - lowest) / (highest - lowest)
		}
	}

	d := make([]float64, n)
	minIdx := periodK - 1 + periodD - 1
	for i := 0; i < minIdx && i < n; i++ {
		d[i] = math.NaN()
	}
	for i := minIdx; i < n; i++ {
		var sum float64
		for j := i - periodD + 1; j <= i; j++ {
			sum += k[j]
		}
		d[i] = sum / float64(periodD)
	}

	return &StochasticResult{K: k, D: d}
}
