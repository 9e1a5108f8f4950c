package analysis

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"finproof/services/marketdata"
)

// randomForest is a tree-ensemble direction classifier: bootstrapped
// decision stumps over technical features, majority-voted. Seeded so runs
// are reproducible.
type randomForest struct{}

func newRandomForest() *randomForest { return &randomForest{} }

func (f *randomForest) Descriptor() Descriptor {
	return Descriptor{
		Name:          "random_forest",
		DisplayName:   "Tree Ensemble Trend Classifier",
		Category:      CategoryML,
		Description:   "Predicts next price direction from technical features",
		MinDataPoints: 100,
		DefaultParams: map[string]interface{}{
			"n_estimators":    100,
			"test_size":       0.2,
			"prediction_days": 1,
			"seed":            42,
		},
	}
}

func (f *randomForest) ValidateParams(params map[string]interface{}) error {
	if err := validateIntRange("random_forest", params, "n_estimators", 50, 500); err != nil {
		return err
	}
	if err := validateFloatRange("random_forest", params, "test_size", 0.1, 0.3); err != nil {
		return err
	}
	return validateIntRange("random_forest", params, "prediction_days", 1, 5)
}

var forestFeatureNames = []string{
	"return_1d", "roc_5", "roc_10", "volatility_5",
	"price_sma5_ratio", "price_sma20_ratio", "rsi_14",
}

func (f *randomForest) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if err := requireHistory("random_forest", series, f.Descriptor().MinDataPoints); err != nil {
		return nil, err
	}

	nEstimators := intParam(params.Raw, "n_estimators", 100)
	testSize := floatParam(params.Raw, "test_size", 0.2)
	predDays := intParam(params.Raw, "prediction_days", 1)
	seed := int64(intParam(params.Raw, "seed", 42))

	features, targets := forestFeatures(series, predDays)
	if len(features) < 50 {
		return nil, Errorf("random_forest", "too little data after feature engineering: %d rows", len(features))
	}

	// Time-ordered split, no shuffling
	splitIdx := int(float64(len(features)) * (1 - testSize))
	trainX, testX := features[:splitIdx], features[splitIdx:]
	trainY, testY := targets[:splitIdx], targets[splitIdx:]

	rng := rand.New(rand.NewSource(seed))
	forest := make([]stump, nEstimators)
	for i := range forest {
		forest[i] = fitStump(trainX, trainY, rng)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	correct := 0
	for i, row := range testX {
		if forestVote(forest, row) == testY[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(testX))

	// Classify the most recent feature row
	latest := latestForestFeatures(series)
	prediction := forestVote(forest, latest)
	votes := 0
	for _, s := range forest {
		if s.predict(latest) == prediction {
			votes++
		}
	}
	probability := float64(votes) / float64(len(forest))

	direction := "down"
	hint := "hold"
	if prediction == 1 {
		direction = "up"
	}
	if probability > 0.6 {
		if prediction == 1 {
			hint = "buy"
		} else {
			hint = "sell"
		}
	}

	confidence := accuracy*0.5 + probability*0.5
	if err := checkConfidence("random_forest", confidence); err != nil {
		return nil, err
	}

	return &Result{
		Summary: fmt.Sprintf(
			"Tree ensemble: price %s in %d day(s) (vote share %.1f%%). Test accuracy %.1f%%.",
			direction, predDays, probability*100, accuracy*100,
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload: map[string]interface{}{
			"prediction":      prediction,
			"direction":       direction,
			"probability":     probability,
			"accuracy":        accuracy,
			"n_estimators":    nEstimators,
			"prediction_days": predDays,
			"seed":            seed,
			"train_samples":   len(trainX),
			"test_samples":    len(testX),
		},
	}, nil
}

// stump is a one-split decision tree over a single feature.
type stump struct {
	feature   int
	threshold float64
	left      int // class when value <= threshold
	right     int
}

func (s stump) predict(row []float64) int {
	if row[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// fitStump trains one stump on a bootstrap sample, choosing the best of a
// handful of random feature/threshold candidates by misclassification.
func fitStump(features [][]float64, targets []int, rng *rand.Rand) stump {
	n := len(features)
	sampleIdx := make([]int, n)
	for i := range sampleIdx {
		sampleIdx[i] = rng.Intn(n)
	}

	best := stump{feature: 0, threshold: 0, left: 1, right: 0}
	bestErr := math.Inf(1)

	const candidates = 12
	for c := 0; c < candidates; c++ {
		feat := rng.Intn(len(forestFeatureNames))
		threshold := features[sampleIdx[rng.Intn(n)]][feat]

		// Majority class on each side of the split
		var leftUp, leftN, rightUp, rightN int
		for _, idx := range sampleIdx {
			if features[idx][feat] <= threshold {
				leftN++
				leftUp += targets[idx]
			} else {
				rightN++
				rightUp += targets[idx]
			}
		}
		if leftN == 0 || rightN == 0 {
			continue
		}

		left, right := 0, 0
		if leftUp*2 >= leftN {
			left = 1
		}
		if rightUp*2 >= rightN {
			right = 1
		}

		miss := 0
		for _, idx := range sampleIdx {
			s := stump{feature: feat, threshold: threshold, left: left, right: right}
			if s.predict(features[idx]) != targets[idx] {
				miss++
			}
		}
		if errRate := float64(miss) / float64(n); errRate < bestErr {
			bestErr = errRate
			best = stump{feature: feat, threshold: threshold, left: left, right: right}
		}
	}
	return best
}

func forestVote(forest []stump, row []float64) int {
	up := 0
	for _, s := range forest {
		up += s.predict(row)
	}
	if up*2 >= len(forest) {
		return 1
	}
	return 0
}

// forestFeatures builds the feature matrix and direction targets, oldest
// row first. The last predDays rows have no target and are excluded.
func forestFeatures(series *marketdata.Series, predDays int) ([][]float64, []int) {
	newest := series.Closes()
	prices := make([]float64, len(newest)) // oldest first
	for i, p := range newest {
		prices[len(newest)-1-i] = p
	}

	const warmup = 21
	var features [][]float64
	var targets []int
	for i := warmup; i < len(prices)-predDays; i++ {
		window := reverse(prices[:i+1]) // newest-first slice ending at day i
		features = append(features, featureRow(window, prices, i))
		if prices[i+predDays] > prices[i] {
			targets = append(targets, 1)
		} else {
			targets = append(targets, 0)
		}
	}
	return features, targets
}

func latestForestFeatures(series *marketdata.Series) []float64 {
	newest := series.Closes()
	prices := make([]float64, len(newest))
	for i, p := range newest {
		prices[len(newest)-1-i] = p
	}
	return featureRow(newest, prices, len(prices)-1)
}

func featureRow(window []float64, prices []float64, i int) []float64 {
	return []float64{
		prices[i]/prices[i-1] - 1,
		prices[i]/prices[i-5] - 1,
		prices[i]/prices[i-10] - 1,
		marketdata.StdDev(window, 5),
		prices[i] / marketdata.CalculateMA(window, 5),
		prices[i] / marketdata.CalculateMA(window, 20),
		marketdata.CalculateRSI(window, 14) / 100,
	}
}

func reverse(prices []float64) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[len(prices)-1-i] = p
	}
	return out
}
