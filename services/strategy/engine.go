package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"finproof/models"
	"finproof/services/marketdata"
)

// Fallback thresholds used when an asset type has no active strategy or
// its configured rules are malformed.
const (
	FallbackStrategyName  = "Fallback"
	fallbackMinConfidence = 0.80
	fallbackMaxRSI        = 70.0
)

// evalInput carries the facts a buy predicate can inspect.
type evalInput struct {
	Confidence float64
	RSI        float64
	Price      float64
}

// buyPredicate checks one rule against the evaluation input. thresholds
// holds the already validated numeric rule values.
type buyPredicate struct {
	key    string
	reason string
	passes func(threshold float64, in evalInput) bool
}

// buyPredicates is the closed, ordered rule vocabulary. Failure reasons
// are reported in this order regardless of JSON key order in the stored
// rules. Unknown keys in a rule set are a configuration error.
var buyPredicates = []buyPredicate{
	{
		key:    "min_confidence",
		reason: "low confidence",
		passes: func(t float64, in evalInput) bool { return in.Confidence >= t },
	},
	{
		key:    "max_rsi",
		reason: "RSI too high",
		passes: func(t float64, in evalInput) bool { return in.RSI <= t },
	},
	{
		key:    "min_rsi",
		reason: "RSI too low",
		passes: func(t float64, in evalInput) bool { return in.RSI >= t },
	},
	{
		key:    "max_price",
		reason: "price too high",
		passes: func(t float64, in evalInput) bool { return in.Price <= t },
	},
}

func fallbackRules() map[string]interface{} {
	return map[string]interface{}{
		"min_confidence": fallbackMinConfidence,
		"max_rsi":        fallbackMaxRSI,
	}
}

// Engine turns analysis outcomes into trade decisions by applying the
// active strategy for the symbol's asset type.
type Engine struct {
	store *Store
}

// NewEngine creates an engine reading strategies from store.
func NewEngine(store *Store) *Engine {
	return &Engine{store: store}
}

// Evaluate applies the active strategy's buy rules to an analysis outcome
// and the current market snapshot. Every rule is checked, never
// short-circuited, so the decision reason lists all failing rules. Zero
// failures means BUY, anything else HOLD.
func (e *Engine) Evaluate(symbol string, confidence float64, snapshot *marketdata.Snapshot) models.Decision {
	assetType := ClassifyAssetType(symbol)

	rules := fallbackRules()
	strategyName := FallbackStrategyName

	strat, err := e.store.GetActive(assetType)
	switch {
	case err == nil:
		validated, verr := validateRules(strat.BuyRules)
		if verr != nil {
			log.Printf("Strategy %q has malformed buy rules (%v), using fallback", strat.Name, verr)
		} else {
			rules = validated
			strategyName = strat.Name
		}
	case errors.Is(err, ErrNotFound):
		// no active strategy for this asset type, fallback applies
	default:
		log.Printf("Failed to load active %s strategy (%v), using fallback", assetType, err)
	}

	in := evalInput{Confidence: confidence}
	if snapshot != nil {
		in.RSI = snapshot.RSI
		in.Price = snapshot.Price
	}

	var failures []string
	for _, pred := range buyPredicates {
		threshold, ok := rules[pred.key]
		if !ok {
			continue
		}
		if !pred.passes(threshold.(float64), in) {
			failures = append(failures, pred.reason)
		}
	}

	decision := models.Decision{
		Symbol:       strings.ToUpper(symbol),
		StrategyName: strategyName,
		Confidence:   confidence,
	}
	if len(failures) == 0 {
		decision.Action = models.ActionBuy
		decision.Reason = "all buy rules satisfied"
	} else {
		decision.Action = models.ActionHold
		decision.Reason = strings.Join(failures, ", ")
	}
	return decision
}

// validateRules checks a stored rule set against the predicate vocabulary
// and coerces every threshold to float64. It returns an error on unknown
// keys or non-numeric values; the caller degrades to the fallback rules.
func validateRules(raw map[string]interface{}) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("rule set is empty")
	}

	known := make(map[string]bool, len(buyPredicates))
	for _, pred := range buyPredicates {
		known[pred.key] = true
	}

	out := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		if !known[key] {
			return nil, fmt.Errorf("unknown rule %q", key)
		}
		f, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", key, err)
		}
		out[key] = f
	}
	return out, nil
}

// toFloat coerces a rule threshold to float64. Rules loaded from the
// database arrive as json.Number, rules set in code as native numerics.
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}
