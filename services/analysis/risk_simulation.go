package analysis

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"finproof/services/marketdata"
)

// riskSimulation runs a seeded Monte Carlo simulation of geometric
// Brownian motion calibrated on historical log returns.
type riskSimulation struct{}

func newRiskSimulation() *riskSimulation { return &riskSimulation{} }

func (r *riskSimulation) Descriptor() Descriptor {
	return Descriptor{
		Name:          "risk_simulation",
		DisplayName:   "Monte Carlo Risk Simulation",
		Category:      CategoryStatistical,
		Description:   "Simulates future price paths to estimate risk and upside",
		MinDataPoints: 60,
		DefaultParams: map[string]interface{}{
			"iterations":   1000,
			"horizon_days": 30,
			"seed":         42,
		},
	}
}

func (r *riskSimulation) ValidateParams(params map[string]interface{}) error {
	if err := validateIntRange("risk_simulation", params, "iterations", 100, 100000); err != nil {
		return err
	}
	return validateIntRange("risk_simulation", params, "horizon_days", 1, 365)
}

func (r *riskSimulation) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if err := requireHistory("risk_simulation", series, r.Descriptor().MinDataPoints); err != nil {
		return nil, err
	}

	iterations := intParam(params.Raw, "iterations", 1000)
	horizon := intParam(params.Raw, "horizon_days", 30)
	seed := int64(intParam(params.Raw, "seed", 42))

	closes := series.Closes()
	current := closes[0]

	// Drift and volatility from daily log returns
	var sum, sumSq float64
	n := len(closes) - 1
	for i := 0; i < n; i++ {
		if closes[i+1] <= 0 {
			return nil, Errorf("risk_simulation", "non-positive price in history")
		}
		lr := math.Log(closes[i] / closes[i+1])
		sum += lr
		sumSq += lr * lr
	}
	mu := sum / float64(n)
	sigma := math.Sqrt(sumSq/float64(n) - mu*mu)

	rng := rand.New(rand.NewSource(seed))
	finals := make([]float64, iterations)
	up := 0
	for i := 0; i < iterations; i++ {
		price := current
		for d := 0; d < horizon; d++ {
			price *= math.Exp(mu - 0.5*sigma*sigma + sigma*rng.NormFloat64())
		}
		finals[i] = price
		if price > current {
			up++
		}

		if i%1000 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	sort.Float64s(finals)

	probUp := float64(up) / float64(iterations)
	median := finals[iterations/2]
	var95 := (current - finals[iterations/20]) / current * 100 // 5th percentile loss
	expectedPct := (median - current) / current * 100

	hint := "hold"
	if probUp > 0.6 {
		hint = "buy"
	} else if probUp < 0.4 {
		hint = "sell"
	}

	// Confidence grows with how decisively the paths lean one way
	confidence := 0.4 + math.Abs(probUp-0.5)
	if err := checkConfidence("risk_simulation", confidence); err != nil {
		return nil, err
	}

	return &Result{
		Summary: fmt.Sprintf(
			"Monte Carlo (%d paths, %d days): %.0f%% of paths end higher. Median target %.2f (%+.1f%%), 95%% VaR %.1f%%.",
			iterations, horizon, probUp*100, median, expectedPct, var95,
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload: map[string]interface{}{
			"current_price":    current,
			"iterations":       iterations,
			"horizon_days":     horizon,
			"seed":             seed,
			"probability_up":   probUp,
			"median_price":     median,
			"var_95_percent":   var95,
			"expected_percent": expectedPct,
			"percentile_5":     finals[iterations/20],
			"percentile_95":    finals[iterations-1-iterations/20],
			"daily_volatility": sigma,
		},
	}, nil
}
