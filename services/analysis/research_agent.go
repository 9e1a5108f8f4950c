package analysis

import (
	"context"
	"fmt"
	"strings"

	"finproof/services/marketdata"
)

// researchAgent aggregates fundamentals and analyst data from the research
// collaborator into a qualitative assessment. Network-bound: runs under
// the executor's nlp timeout.
type researchAgent struct {
	research marketdata.ResearchSource
}

func newResearchAgent(research marketdata.ResearchSource) *researchAgent {
	return &researchAgent{research: research}
}

func (a *researchAgent) Descriptor() Descriptor {
	return Descriptor{
		Name:          "research_agent",
		DisplayName:   "Web Research Agent",
		Category:      CategoryNLP,
		Description:   "Collects fundamentals and analyst views from web sources",
		MinDataPoints: 1,
		DefaultParams: map[string]interface{}{
			"include_fundamentals":    true,
			"include_recommendations": true,
		},
	}
}

func (a *researchAgent) ValidateParams(params map[string]interface{}) error {
	return nil
}

func (a *researchAgent) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if a.research == nil {
		return nil, Errorf("research_agent", "no research source configured")
	}

	data, err := a.research.Fundamentals(ctx, params.Symbol)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, RetryableErrorf("research_agent", "research source failed: %v", err)
	}
	if len(data) == 0 {
		return nil, Errorf("research_agent", "no research data available for %s", params.Symbol)
	}

	var sections []string
	payload := map[string]interface{}{}
	score := 0

	if boolParam(params.Raw, "include_fundamentals", true) {
		if pe, ok := digFloat(data, "trailingPE"); ok {
			payload["trailing_pe"] = pe
			switch {
			case pe > 0 && pe < 15:
				sections = append(sections, fmt.Sprintf("P/E %.1f looks cheap", pe))
				score++
			case pe > 40:
				sections = append(sections, fmt.Sprintf("P/E %.1f looks expensive", pe))
				score--
			default:
				sections = append(sections, fmt.Sprintf("P/E %.1f is unremarkable", pe))
			}
		}
		if margin, ok := digFloat(data, "profitMargins"); ok {
			payload["profit_margin"] = margin
			if margin > 0.15 {
				sections = append(sections, fmt.Sprintf("healthy profit margin of %.0f%%", margin*100))
				score++
			} else if margin < 0 {
				sections = append(sections, "the company is unprofitable")
				score--
			}
		}
	}

	if boolParam(params.Raw, "include_recommendations", true) {
		if rec, ok := digString(data, "recommendationKey"); ok {
			payload["recommendation"] = rec
			switch rec {
			case "strong_buy", "buy":
				sections = append(sections, fmt.Sprintf("analyst consensus is %q", rec))
				score += 2
			case "sell", "strong_sell":
				sections = append(sections, fmt.Sprintf("analyst consensus is %q", rec))
				score -= 2
			default:
				sections = append(sections, fmt.Sprintf("analyst consensus is %q", rec))
			}
		}
		if target, ok := digFloat(data, "targetMeanPrice"); ok {
			payload["target_mean_price"] = target
		}
	}

	if len(sections) == 0 {
		return nil, Errorf("research_agent", "research data for %s had no usable fields", params.Symbol)
	}

	hint := "hold"
	verdict := "mixed"
	if score >= 2 {
		hint = "buy"
		verdict = "favorable"
	} else if score <= -2 {
		hint = "sell"
		verdict = "unfavorable"
	}

	// Qualitative sources never warrant high certainty on their own
	confidence := 0.4 + 0.05*float64(len(sections))
	if confidence > 0.75 {
		confidence = 0.75
	}
	if err := checkConfidence("research_agent", confidence); err != nil {
		return nil, err
	}

	payload["score"] = score
	payload["sections"] = len(sections)

	return &Result{
		Summary: fmt.Sprintf(
			"Research on %s is %s: %s.",
			params.Symbol, verdict, strings.Join(sections, "; "),
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload:    payload,
	}, nil
}

// digFloat finds the first numeric value stored under key anywhere in the
// nested payload. Upstream summary responses bury fields several levels
// deep and sometimes wrap numbers in {raw, fmt} objects.
func digFloat(data map[string]interface{}, key string) (float64, bool) {
	if v, ok := data[key]; ok {
		switch n := v.(type) {
		case float64:
			return n, true
		case map[string]interface{}:
			if raw, ok := n["raw"].(float64); ok {
				return raw, true
			}
		}
	}
	for _, v := range data {
		if nested, ok := v.(map[string]interface{}); ok {
			if f, ok := digFloat(nested, key); ok {
				return f, true
			}
		}
		if list, ok := v.([]interface{}); ok {
			for _, item := range list {
				if nested, ok := item.(map[string]interface{}); ok {
					if f, ok := digFloat(nested, key); ok {
						return f, true
					}
				}
			}
		}
	}
	return 0, false
}

func digString(data map[string]interface{}, key string) (string, bool) {
	if v, ok := data[key].(string); ok {
		return v, true
	}
	for _, v := range data {
		if nested, ok := v.(map[string]interface{}); ok {
			if s, ok := digString(nested, key); ok {
				return s, true
			}
		}
		if list, ok := v.([]interface{}); ok {
			for _, item := range list {
				if nested, ok := item.(map[string]interface{}); ok {
					if s, ok := digString(nested, key); ok {
						return s, true
					}
				}
			}
		}
	}
	return "", false
}
