package analysis

import (
	"context"
	"fmt"
	"math"

	"finproof/services/marketdata"
)

// trendForecast projects future prices with exponential smoothing plus the
// recent trend, with a volatility-scaled confidence interval around the
// projection.
type trendForecast struct{}

func newTrendForecast() *trendForecast { return &trendForecast{} }

func (t *trendForecast) Descriptor() Descriptor {
	return Descriptor{
		Name:          "trend_forecast",
		DisplayName:   "Time Series Trend Forecast",
		Category:      CategoryStatistical,
		Description:   "Projects future prices from historical patterns",
		MinDataPoints: 60,
		DefaultParams: map[string]interface{}{
			"forecast_days":       30,
			"confidence_interval": 0.95,
		},
	}
}

func (t *trendForecast) ValidateParams(params map[string]interface{}) error {
	if err := validateIntRange("trend_forecast", params, "forecast_days", 1, 365); err != nil {
		return err
	}
	return validateFloatRange("trend_forecast", params, "confidence_interval", 0.8, 0.99)
}

func (t *trendForecast) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if err := requireHistory("trend_forecast", series, t.Descriptor().MinDataPoints); err != nil {
		return nil, err
	}

	days := intParam(params.Raw, "forecast_days", 30)
	interval := floatParam(params.Raw, "confidence_interval", 0.95)

	closes := series.Closes() // newest first
	current := closes[0]

	// Smoothed level and average trend over the last 10 sessions
	const alpha = 0.3
	level := closes[len(closes)-1]
	for i := len(closes) - 2; i >= 0; i-- {
		level = alpha*closes[i] + (1-alpha)*level
	}
	trend := 0.0
	for i := 0; i < 10; i++ {
		trend += closes[i] - closes[i+1]
	}
	trend /= 10

	dailyStd := marketdata.StdDev(closes, 20) * current
	z := zScore(interval)

	forecast := make([]float64, days)
	lower := make([]float64, days)
	upper := make([]float64, days)
	last := level
	for i := 0; i < days; i++ {
		last += trend
		spread := z * dailyStd * math.Sqrt(float64(i+1))
		forecast[i] = last
		lower[i] = last - spread
		upper[i] = last + spread
	}

	end := forecast[days-1]
	changePct := (end - current) / current * 100

	direction := "neutral"
	hint := "hold"
	if changePct > 5 {
		direction = "bullish"
		hint = "buy"
	} else if changePct < -5 {
		direction = "bearish"
		hint = "sell"
	}

	// Narrower interval relative to price means a more trustworthy fit
	spread := (upper[days-1] - lower[days-1]) / current
	confidence := math.Max(0.3, math.Min(0.9, 1-spread))
	if err := checkConfidence("trend_forecast", confidence); err != nil {
		return nil, err
	}

	return &Result{
		Summary: fmt.Sprintf(
			"Trend forecast: %s trend expected. Price target %.2f (%+.1f%%) in %d days.",
			direction, end, changePct, days,
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload: map[string]interface{}{
			"current_price":  current,
			"forecast_end":   end,
			"change_percent": changePct,
			"forecast_days":  days,
			"forecast":       forecast,
			"lower_bound":    lower,
			"upper_bound":    upper,
		},
	}, nil
}

// zScore maps a two-sided confidence level to its normal quantile. The
// fixed table covers the validated parameter range.
func zScore(confidence float64) float64 {
	switch {
	case confidence >= 0.99:
		return 2.576
	case confidence >= 0.95:
		return 1.96
	case confidence >= 0.90:
		return 1.645
	default:
		return 1.282
	}
}
