package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"finproof/services/marketdata"

	"github.com/stretchr/testify/require"
)

func syntheticSeries(n int) *marketdata.Series {
	candles := make([]marketdata.Candle, n)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 15*math.Sin(float64(i)/9) + 0.05*float64(i)
		candles[i] = marketdata.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   price - 0.5,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 2_000_000,
		}
	}
	return &marketdata.Series{Symbol: "TEST", Period: "1y", Candles: candles}
}

func flatSeries(n int) *marketdata.Series {
	candles := make([]marketdata.Candle, n)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		candles[i] = marketdata.Candle{Date: day.AddDate(0, 0, i), Close: 50}
	}
	return &marketdata.Series{Symbol: "FLAT", Period: "1y", Candles: candles}
}

func TestRegistryContainsAllModules(t *testing.T) {
	registry := NewRegistry(Deps{})

	names := []string{}
	for _, d := range registry.List() {
		names = append(names, d.Name)
	}
	require.ElementsMatch(t, []string{
		"trend_forecast",
		"risk_simulation",
		"mean_reversion",
		"random_forest",
		"neural_network",
		"sentiment",
		"research_agent",
	}, names)

	for _, d := range registry.List() {
		require.NotEmpty(t, d.DisplayName)
		require.Contains(t, []Category{CategoryStatistical, CategoryML, CategoryNLP}, d.Category)
	}
}

func TestStatisticalModulesProduceBoundedConfidence(t *testing.T) {
	registry := NewRegistry(Deps{})
	series := syntheticSeries(250)

	for _, name := range []string{"trend_forecast", "risk_simulation", "mean_reversion", "random_forest", "neural_network"} {
		module, ok := registry.Resolve(name)
		require.True(t, ok, name)

		result, err := module.Analyze(context.Background(), Params{Symbol: "TEST", Raw: module.Descriptor().DefaultParams}, series)
		require.NoError(t, err, name)
		require.GreaterOrEqual(t, result.Confidence, 0.0, name)
		require.LessOrEqual(t, result.Confidence, 1.0, name)
		require.NotEmpty(t, result.Summary, name)
		require.Contains(t, []string{"buy", "sell", "hold"}, result.ActionHint, name)
	}
}

func TestInsufficientHistoryFailsCleanly(t *testing.T) {
	registry := NewRegistry(Deps{})
	short := syntheticSeries(10)

	for _, name := range []string{"trend_forecast", "risk_simulation", "mean_reversion", "random_forest", "neural_network"} {
		module, _ := registry.Resolve(name)
		_, err := module.Analyze(context.Background(), Params{Symbol: "TEST"}, short)
		require.Error(t, err, name)

		var analysisErr *Error
		require.ErrorAs(t, err, &analysisErr, name)
		require.False(t, analysisErr.Retryable, name)
	}
}

func TestRiskSimulationIsReproducible(t *testing.T) {
	module, _ := NewRegistry(Deps{}).Resolve("risk_simulation")
	series := syntheticSeries(120)
	params := Params{Symbol: "TEST", Raw: map[string]interface{}{"seed": 7, "iterations": 500}}

	first, err := module.Analyze(context.Background(), params, series)
	require.NoError(t, err)
	second, err := module.Analyze(context.Background(), params, series)
	require.NoError(t, err)

	require.Equal(t, first.Payload["median_price"], second.Payload["median_price"])
	require.Equal(t, first.Payload["probability_up"], second.Payload["probability_up"])
	require.Equal(t, first.Confidence, second.Confidence)
}

func TestRandomForestIsReproducible(t *testing.T) {
	module, _ := NewRegistry(Deps{}).Resolve("random_forest")
	series := syntheticSeries(250)
	params := Params{Symbol: "TEST", Raw: map[string]interface{}{"seed": 3}}

	first, err := module.Analyze(context.Background(), params, series)
	require.NoError(t, err)
	second, err := module.Analyze(context.Background(), params, series)
	require.NoError(t, err)

	require.Equal(t, first.Confidence, second.Confidence)
	require.Equal(t, first.ActionHint, second.ActionHint)
}

func TestMeanReversionRejectsFlatSeries(t *testing.T) {
	module, _ := NewRegistry(Deps{}).Resolve("mean_reversion")

	_, err := module.Analyze(context.Background(), Params{Symbol: "FLAT"}, flatSeries(60))
	require.Error(t, err)
}

func TestParamHelpersAcceptStoredNumbers(t *testing.T) {
	// parameters reloaded from a JSON column arrive as json.Number; they
	// must resolve to the same values as freshly decoded HTTP JSON
	params := map[string]interface{}{
		"seed":     json.Number("7"),
		"lookback": json.Number("25"),
		"entry_z":  json.Number("1.5"),
	}

	require.Equal(t, 7, intParam(params, "seed", 42))
	require.Equal(t, 25, intParam(params, "lookback", 20))
	require.Equal(t, 1.5, floatParam(params, "entry_z", 2.0))
	require.Equal(t, 42, intParam(params, "missing", 42))
}

func TestValidateParamsRanges(t *testing.T) {
	registry := NewRegistry(Deps{})

	cases := []struct {
		module string
		params map[string]interface{}
		ok     bool
	}{
		{"trend_forecast", map[string]interface{}{"forecast_days": 30}, true},
		{"trend_forecast", map[string]interface{}{"forecast_days": 0}, false},
		{"trend_forecast", map[string]interface{}{"forecast_days": 400}, false},
		{"trend_forecast", map[string]interface{}{"confidence_interval": 0.5}, false},
		{"risk_simulation", map[string]interface{}{"iterations": 100000}, true},
		{"risk_simulation", map[string]interface{}{"iterations": 50}, false},
		{"mean_reversion", map[string]interface{}{"lookback": 10, "entry_z": 4.0}, true},
		{"mean_reversion", map[string]interface{}{"entry_z": 4.5}, false},
		{"random_forest", map[string]interface{}{"n_estimators": 500, "test_size": 0.2}, true},
		{"random_forest", map[string]interface{}{"test_size": 0.5}, false},
		{"neural_network", map[string]interface{}{"epochs": 10}, true},
		{"neural_network", map[string]interface{}{"epochs": 500}, false},
	}
	for _, tc := range cases {
		module, ok := registry.Resolve(tc.module)
		require.True(t, ok, tc.module)

		err := module.ValidateParams(tc.params)
		if tc.ok {
			require.NoError(t, err, fmt.Sprintf("%s %v", tc.module, tc.params))
		} else {
			require.Error(t, err, fmt.Sprintf("%s %v", tc.module, tc.params))
		}
	}
}
