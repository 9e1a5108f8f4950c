package analysis

import (
	"context"
	"fmt"
	"math"

	"finproof/services/marketdata"
)

// meanReversion scores how far the current price has stretched from its
// moving average, in Bollinger-band terms.
type meanReversion struct{}

func newMeanReversion() *meanReversion { return &meanReversion{} }

func (m *meanReversion) Descriptor() Descriptor {
	return Descriptor{
		Name:          "mean_reversion",
		DisplayName:   "Mean Reversion Analysis",
		Category:      CategoryStatistical,
		Description:   "Detects overextended prices likely to revert to their average",
		MinDataPoints: 40,
		DefaultParams: map[string]interface{}{
			"lookback": 20,
			"entry_z":  2.0,
		},
	}
}

func (m *meanReversion) ValidateParams(params map[string]interface{}) error {
	if err := validateIntRange("mean_reversion", params, "lookback", 10, 200); err != nil {
		return err
	}
	return validateFloatRange("mean_reversion", params, "entry_z", 0.5, 4.0)
}

func (m *meanReversion) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if err := requireHistory("mean_reversion", series, m.Descriptor().MinDataPoints); err != nil {
		return nil, err
	}

	lookback := intParam(params.Raw, "lookback", 20)
	entryZ := floatParam(params.Raw, "entry_z", 2.0)

	closes := series.Closes()
	if len(closes) < lookback+1 {
		return nil, Errorf("mean_reversion", "insufficient history: need %d data points, got %d", lookback+1, len(closes))
	}

	current := closes[0]
	mean := marketdata.CalculateMA(closes, lookback)

	variance := 0.0
	for i := 0; i < lookback; i++ {
		d := closes[i] - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(lookback))
	if std == 0 {
		return nil, Errorf("mean_reversion", "flat price series, no dispersion to measure")
	}

	z := (current - mean) / std
	upper, middle, lower := marketdata.CalculateBollinger(closes, lookback, entryZ)

	hint := "hold"
	state := "within its normal range"
	if z <= -entryZ {
		hint = "buy"
		state = "stretched below its average"
	} else if z >= entryZ {
		hint = "sell"
		state = "stretched above its average"
	}

	// The further outside the band, the stronger the reversion case
	confidence := math.Min(0.9, 0.45+math.Abs(z)*0.15)
	if err := checkConfidence("mean_reversion", confidence); err != nil {
		return nil, err
	}

	return &Result{
		Summary: fmt.Sprintf(
			"Mean reversion: price %.2f is %s (z=%.2f vs %d-day mean %.2f).",
			current, state, z, lookback, mean,
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload: map[string]interface{}{
			"current_price": current,
			"mean":          middle,
			"z_score":       z,
			"upper_band":    upper,
			"lower_band":    lower,
			"lookback":      lookback,
			"entry_z":       entryZ,
		},
	}, nil
}
