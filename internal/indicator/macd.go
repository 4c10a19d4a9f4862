package indicator

// MACDResult holds the MACD line, signal line, and histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// CalculateMACD calculates the Moving Average Convergence Divergence from
// fast/slow EMAs of the prices and a signal EMA of the MACD line.
func CalculateMACD(prices []float64, fast, slow, signal int) *MACDResult {
	if len(prices) == 0 || fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return nil
	}
	emaFast := CalculateEMA(prices, fast)
	emaSlow := CalculateEMA(prices, slow)

	macd := make([]float64, len(prices))
	for i := range prices {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	signalLine := CalculateEMA(macd, signal)

	hist := make([]float64, len(prices))
	for i := range prices {
		hist[i] = macd[i] - signalLine[i]
	}
	return &MACDResult{MACD: macd, Signal: signalLine, Histogram: hist}
}
