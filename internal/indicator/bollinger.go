package indicator

// BollingerResult holds the upper, middle, and lower bands.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// CalculateBollingerBands calculates Bollinger Bands: an SMA middle band and
// upper/lower bands offset by stdDev rolling standard deviations.
func CalculateBollingerBands(prices []float64, period int, stdDev float64) *BollingerResult {
	if len(prices) < period || period <= 0 {
		return nil
	}
	middle := CalculateSMA(prices, period)
	std := CalculateStdDev(prices, period)

	upper := make([]float64, len(prices))
	lower := make([]float64, len(prices))
	for i := range prices {
		upper[i] = middle[i] + std[i]*stdDev
		lower[i] = middle[i] - std[i]*stdDev
	}
	return &BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
