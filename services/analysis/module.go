package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"finproof/services/marketdata"
)

// Category groups modules by the kind of work they do. The executor keys
// its timeouts on the category: nlp modules are network-bound, the rest
// run purely on the supplied series.
type Category string

const (
	CategoryStatistical Category = "statistical"
	CategoryML          Category = "ml"
	CategoryNLP         Category = "nlp"
)

// Descriptor is the immutable metadata a module registers under.
type Descriptor struct {
	Name          string                 `json:"name"`
	DisplayName   string                 `json:"display_name"`
	Category      Category               `json:"category"`
	Description   string                 `json:"description"`
	MinDataPoints int                    `json:"min_data_points"`
	DefaultParams map[string]interface{} `json:"default_params"`
}

// Result is the uniform output every module produces. Confidence must lie
// strictly within [0,1]; a module that cannot honor that fails instead of
// clamping.
type Result struct {
	Summary    string                 `json:"summary"`
	Confidence float64                `json:"confidence"`
	ActionHint string                 `json:"action_hint"` // buy, sell, hold
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Params carries the per-job inputs into a module.
type Params struct {
	Symbol string
	Raw    map[string]interface{}
}

// Module is the contract every analysis algorithm implements. Analyze must
// respect ctx cancellation; network-bound modules run under an executor
// deadline.
type Module interface {
	Descriptor() Descriptor
	ValidateParams(params map[string]interface{}) error
	Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error)
}

// Error is a module-level analysis failure. Retryable marks transient
// upstream failures the executor may retry before recording the job as
// failed.
type Error struct {
	Module    string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Module, e.Message)
}

// Errorf builds a non-retryable analysis error.
func Errorf(module, format string, args ...interface{}) *Error {
	return &Error{Module: module, Message: fmt.Sprintf(format, args...)}
}

// RetryableErrorf builds a retryable analysis error for transient upstream
// failures.
func RetryableErrorf(module, format string, args ...interface{}) *Error {
	return &Error{Module: module, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// checkConfidence guards the shared output contract.
func checkConfidence(module string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return Errorf(module, "computed confidence %.4f outside [0,1]", confidence)
	}
	return nil
}

// requireHistory fails when the series is too short for the module.
func requireHistory(module string, series *marketdata.Series, min int) error {
	if series == nil || series.Len() < min {
		got := 0
		if series != nil {
			got = series.Len()
		}
		return Errorf(module, "insufficient history: need %d data points, got %d", min, got)
	}
	return nil
}

// Parameter accessors. Job parameters decoded straight from HTTP JSON are
// float64; parameters reloaded from the store's JSON columns are
// json.Number. Both must resolve to the same value.

func intParam(params map[string]interface{}, key string, def int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
			if f, err := n.Float64(); err == nil {
				return int(f)
			}
		}
	}
	return def
}

func floatParam(params map[string]interface{}, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	}
	return def
}

func boolParam(params map[string]interface{}, key string, def bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// validateIntRange rejects an out-of-range integer parameter.
func validateIntRange(module string, params map[string]interface{}, key string, min, max int) error {
	if _, ok := params[key]; !ok {
		return nil
	}
	v := intParam(params, key, min)
	if v < min || v > max {
		return Errorf(module, "parameter %q must be between %d and %d", key, min, max)
	}
	return nil
}

// validateFloatRange rejects an out-of-range numeric parameter.
func validateFloatRange(module string, params map[string]interface{}, key string, min, max float64) error {
	if _, ok := params[key]; !ok {
		return nil
	}
	v := floatParam(params, key, min)
	if v < min || v > max {
		return Errorf(module, "parameter %q must be between %g and %g", key, min, max)
	}
	return nil
}
