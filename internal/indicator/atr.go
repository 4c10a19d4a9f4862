package indicator

import (
	"math"

	"github.com/amirphl/noice-trader/internal/candle"
)

// CalculateATR calculates the Average True Range as an SMA of the true range.
// Indices before the first full period are NaN.
func CalculateATR(candles []candle.Candle, period int) []float64 {
	if len(candles) < period || period <= 0 {
		return nil
	}
	tr := make([]float64, len(candles))
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowClose := math.Abs(candles[i].Low - candles[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}
	return CalculateSMA(tr, period)
}
