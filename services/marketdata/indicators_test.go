package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// Prices are newest-first throughout, matching Series.Closes.

func TestCalculateMA(t *testing.T) {
	prices := []float64{10, 20, 30, 40, 50}
	require.InDelta(t, 20, CalculateMA(prices, 3), 1e-9)
	require.InDelta(t, 30, CalculateMA(prices, 5), 1e-9)

	// not enough data
	require.Equal(t, 0.0, CalculateMA(prices, 6))
	require.Equal(t, 0.0, CalculateMA(nil, 3))
}

func TestCalculateRSIAllGains(t *testing.T) {
	// strictly rising prices, newest first
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 200 - float64(i)
	}
	require.InDelta(t, 100, CalculateRSI(prices, 14), 1e-9)
}

func TestCalculateRSINeutralOnShortInput(t *testing.T) {
	require.InDelta(t, 50, CalculateRSI([]float64{10, 11, 12}, 14), 1e-9)
}

func TestCalculateRSIBounds(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/3)
	}
	rsi := CalculateRSI(prices, 14)
	require.Greater(t, rsi, 0.0)
	require.Less(t, rsi, 100.0)
}

func TestCalculateEMAConvergesToConstant(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 42
	}
	require.InDelta(t, 42, CalculateEMA(prices, 12), 1e-9)
}

func TestCalculateBollinger(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + 5*math.Sin(float64(i)/2)
	}
	upper, middle, lower := CalculateBollinger(prices, 20, 2)
	require.Greater(t, upper, middle)
	require.Greater(t, middle, lower)
}

func TestCalculateMACDSign(t *testing.T) {
	// long uptrend, newest first: short EMA above long EMA, positive MACD
	prices := make([]float64, 120)
	for i := range prices {
		prices[i] = 300 - 2*float64(i)
	}
	macd, _, _ := CalculateMACD(prices)
	require.Greater(t, macd, 0.0)
}

func TestSeriesCloses(t *testing.T) {
	s := &Series{Candles: []Candle{
		{Close: 1}, {Close: 2}, {Close: 3},
	}}
	require.Equal(t, []float64{3, 2, 1}, s.Closes())
	require.InDelta(t, 3, s.LastClose(), 1e-9)
	require.Equal(t, 3, s.Len())

	empty := &Series{}
	require.Equal(t, 0.0, empty.LastClose())
}
