package strategy

import (
	"encoding/json"
	"testing"

	"finproof/models"
	"finproof/services/marketdata"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func snapshot(price, rsi float64) *marketdata.Snapshot {
	return &marketdata.Snapshot{Symbol: "AAPL", Price: price, RSI: rsi}
}

func TestEvaluateFallbackBuy(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	decision := engine.Evaluate("AAPL", 0.90, snapshot(100, 65))
	require.Equal(t, models.ActionBuy, decision.Action)
	require.Equal(t, FallbackStrategyName, decision.StrategyName)
	require.InDelta(t, 0.90, decision.Confidence, 1e-9)
}

func TestEvaluateLowConfidenceHolds(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	decision := engine.Evaluate("AAPL", 0.60, snapshot(100, 65))
	require.Equal(t, models.ActionHold, decision.Action)
	require.Equal(t, "low confidence", decision.Reason)
}

func TestEvaluateHighRSIHolds(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	decision := engine.Evaluate("AAPL", 0.90, snapshot(100, 85))
	require.Equal(t, models.ActionHold, decision.Action)
	require.Equal(t, "RSI too high", decision.Reason)
}

func TestEvaluateCollectsAllFailingRules(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	// both rules fail and both reasons are reported, in rule order
	decision := engine.Evaluate("AAPL", 0.60, snapshot(100, 85))
	require.Equal(t, models.ActionHold, decision.Action)
	require.Equal(t, "low confidence, RSI too high", decision.Reason)
}

func TestEvaluateBoundaryValuesPass(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	// thresholds are inclusive
	decision := engine.Evaluate("AAPL", 0.80, snapshot(100, 70))
	require.Equal(t, models.ActionBuy, decision.Action)
}

func TestEvaluateUsesActiveStrategyForAssetType(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)

	strat, err := store.Save(&models.Strategy{
		Name:      "Krypto Aggressiv",
		AssetType: models.AssetTypeCrypto,
		BuyRules: datatypes.JSONMap{
			"min_confidence": 0.6,
			"max_rsi":        80.0,
		},
	})
	require.NoError(t, err)
	_, err = store.Activate(strat.ID)
	require.NoError(t, err)

	// BTC-USD classifies as crypto and picks up the looser rules
	decision := engine.Evaluate("BTC-USD", 0.65, snapshot(40000, 75))
	require.Equal(t, models.ActionBuy, decision.Action)
	require.Equal(t, "Krypto Aggressiv", decision.StrategyName)

	// a stock symbol still evaluates under the fallback
	stockDecision := engine.Evaluate("AAPL", 0.65, snapshot(100, 75))
	require.Equal(t, models.ActionHold, stockDecision.Action)
	require.Equal(t, FallbackStrategyName, stockDecision.StrategyName)
}

func TestValidateRulesCoercesStoredNumbers(t *testing.T) {
	// rules reloaded from a JSON column arrive as json.Number, not float64
	rules, err := validateRules(map[string]interface{}{
		"min_confidence": json.Number("0.75"),
		"max_rsi":        json.Number("80"),
	})
	require.NoError(t, err)
	require.Equal(t, 0.75, rules["min_confidence"])
	require.Equal(t, 80.0, rules["max_rsi"])
}

func TestEvaluateMalformedRulesDegradeToFallback(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)

	strat, err := store.Save(&models.Strategy{
		Name:      "Broken",
		AssetType: models.AssetTypeStock,
		BuyRules: datatypes.JSONMap{
			"min_confidence": "very high",
		},
	})
	require.NoError(t, err)
	_, err = store.Activate(strat.ID)
	require.NoError(t, err)

	decision := engine.Evaluate("AAPL", 0.90, snapshot(100, 65))
	require.Equal(t, models.ActionBuy, decision.Action)
	require.Equal(t, FallbackStrategyName, decision.StrategyName)
}

func TestEvaluateUnknownRuleKeyDegradesToFallback(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store)

	strat, err := store.Save(&models.Strategy{
		Name:      "Unknown Keys",
		AssetType: models.AssetTypeStock,
		BuyRules: datatypes.JSONMap{
			"min_confidence": 0.5,
			"moon_phase":     "waxing",
		},
	})
	require.NoError(t, err)
	_, err = store.Activate(strat.ID)
	require.NoError(t, err)

	decision := engine.Evaluate("AAPL", 0.70, snapshot(100, 65))
	require.Equal(t, models.ActionHold, decision.Action)
	require.Equal(t, FallbackStrategyName, decision.StrategyName)
	require.Equal(t, "low confidence", decision.Reason)
}

func TestClassifyAssetType(t *testing.T) {
	require.Equal(t, models.AssetTypeCrypto, ClassifyAssetType("BTC-USD"))
	require.Equal(t, models.AssetTypeCrypto, ClassifyAssetType("eth-eur"))
	require.Equal(t, models.AssetTypeCrypto, ClassifyAssetType("BTC"))
	require.Equal(t, models.AssetTypeCrypto, ClassifyAssetType(" doge "))
	require.Equal(t, models.AssetTypeStock, ClassifyAssetType("AAPL"))
	require.Equal(t, models.AssetTypeStock, ClassifyAssetType("SAP"))
	require.Equal(t, models.AssetTypeStock, ClassifyAssetType(""))
}
