package marketdata

import "math"

// Indicator helpers operate on closing prices ordered newest-first,
// matching Series.Closes.

// CalculateMA calculates Simple Moving Average
func CalculateMA(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average
func CalculateEMA(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}

	// Start with SMA of the oldest window
	sma := CalculateMA(prices[len(prices)-period:], period)
	if sma == 0 {
		return 0
	}

	multiplier := 2.0 / float64(period+1)
	ema := sma

	// Walk from oldest to newest
	for i := len(prices) - period - 1; i >= 0; i-- {
		ema = (prices[i]-ema)*multiplier + ema
	}

	return ema
}

// CalculateEMASeries calculates the full EMA series for MACD
func CalculateEMASeries(prices []float64, period int) []float64 {
	if len(prices) < period {
		return nil
	}

	result := make([]float64, len(prices))

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	result[len(prices)-period] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)

	for i := len(prices) - period - 1; i >= 0; i-- {
		result[i] = (prices[i]-result[i+1])*multiplier + result[i+1]
	}

	return result
}

// CalculateRSI calculates Relative Strength Index
func CalculateRSI(prices []float64, period int) float64 {
	if len(prices) <= period {
		return 50 // Default neutral
	}

	gains := 0.0
	losses := 0.0

	for i := 0; i < period; i++ {
		change := prices[i] - prices[i+1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	return math.Round(rsi*100) / 100
}

// CalculateMACD calculates MACD, Signal, and Histogram
func CalculateMACD(prices []float64) (macd, signal, hist float64) {
	if len(prices) < 26 {
		return 0, 0, 0
	}

	ema12 := CalculateEMA(prices, 12)
	ema26 := CalculateEMA(prices, 26)

	macd = ema12 - ema26

	if len(prices) < 35 { // Not enough data for a signal line
		return macd, 0, macd
	}

	ema12Series := CalculateEMASeries(prices, 12)
	ema26Series := CalculateEMASeries(prices, 26)
	if ema12Series == nil || ema26Series == nil {
		return macd, 0, macd
	}

	macdSeries := make([]float64, len(prices)-25)
	for i := 0; i < len(macdSeries); i++ {
		macdSeries[i] = ema12Series[i] - ema26Series[i]
	}

	// Signal is the 9-day EMA of MACD
	signal = CalculateEMA(macdSeries, 9)
	hist = macd - signal

	return math.Round(macd*10000) / 10000,
		math.Round(signal*10000) / 10000,
		math.Round(hist*10000) / 10000
}

// CalculateBollinger calculates Bollinger Bands for the latest close.
func CalculateBollinger(prices []float64, period int, stdDevs float64) (upper, middle, lower float64) {
	if len(prices) < period {
		return 0, 0, 0
	}

	middle = CalculateMA(prices, period)

	variance := 0.0
	for i := 0; i < period; i++ {
		d := prices[i] - middle
		variance += d * d
	}
	std := math.Sqrt(variance / float64(period))

	upper = middle + stdDevs*std
	lower = middle - stdDevs*std
	return upper, middle, lower
}

// StdDev returns the standard deviation of daily returns over the window.
func StdDev(prices []float64, period int) float64 {
	if len(prices) <= period {
		return 0
	}

	returns := make([]float64, period)
	mean := 0.0
	for i := 0; i < period; i++ {
		if prices[i+1] == 0 {
			return 0
		}
		returns[i] = prices[i]/prices[i+1] - 1
		mean += returns[i]
	}
	mean /= float64(period)

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(period))
}
