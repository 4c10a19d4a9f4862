// Package indicator provides technical analysis indicators for financial markets
package indicator

import "math"

// CalculateSMA calculates the simple moving average. Indices before the
// first full period are NaN.
func CalculateSMA(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	sma := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		sma[i] = math.NaN()
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	sma[period-1] = sum / float64(period)
	for i := period; i < len(values); i++ {
		sum += values[i] - values[i-period]
		sma[i] = sum / float64(period)
	}
	return sma
}

// CalculateEMA calculates the exponential moving average seeded from the
// first value, alpha = 2/(period+1).
func CalculateEMA(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	ema := make([]float64, len(values))
	alpha := 2.0 / (float64(period) + 1.0)
	ema[0] = values[0]
	for i := 1; i < len(values); i++ {
		ema[i] = values[i]*alpha + ema[i-1]*(1-alpha)
	}
	return ema
}

// CalculateStdDev calculates the rolling population standard deviation over
// the given period. Indices before the first full period are NaN.
func CalculateStdDev(values []float64, period int) []float64 {
	if len(values) < period || period <= 0 {
		return nil
	}
	out := make([]float64, len(values))
	for i := 0; i < period-1; i++ {
		out[i] = math.NaN()
	}
	for i := period - 1; i < len(values); i++ {
		var mean float64
		for j := i - period + 1; j <= i; j++ {
			mean += values[j]
		}
		mean /= float64(period)
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - mean
			variance += d * d
		}
		out[i] = math.Sqrt(variance / float64(period))
	}
	return out
}
