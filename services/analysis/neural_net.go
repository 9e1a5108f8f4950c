package analysis

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"finproof/services/marketdata"
)

// neuralNet is a small feedforward pattern-recognition network: a window
// of normalized returns through one tanh hidden layer to a sigmoid
// direction output, trained by seeded SGD.
type neuralNet struct{}

func newNeuralNet() *neuralNet { return &neuralNet{} }

func (n *neuralNet) Descriptor() Descriptor {
	return Descriptor{
		Name:          "neural_network",
		DisplayName:   "Neural Pattern Recognition",
		Category:      CategoryML,
		Description:   "Detects recurring patterns in price movements with a neural network",
		MinDataPoints: 200,
		DefaultParams: map[string]interface{}{
			"epochs":          50,
			"sequence_length": 20,
			"seed":            42,
		},
	}
}

func (n *neuralNet) ValidateParams(params map[string]interface{}) error {
	if err := validateIntRange("neural_network", params, "epochs", 10, 200); err != nil {
		return err
	}
	return validateIntRange("neural_network", params, "sequence_length", 5, 60)
}

func (n *neuralNet) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if err := requireHistory("neural_network", series, n.Descriptor().MinDataPoints); err != nil {
		return nil, err
	}

	epochs := intParam(params.Raw, "epochs", 50)
	seqLen := intParam(params.Raw, "sequence_length", 20)
	seed := int64(intParam(params.Raw, "seed", 42))

	returns := dailyReturns(series) // oldest first
	if len(returns) < seqLen+30 {
		return nil, Errorf("neural_network", "insufficient history for sequence length %d", seqLen)
	}

	// Normalize by the full-sample deviation so inputs stay near [-1,1]
	std := 0.0
	for _, r := range returns {
		std += r * r
	}
	std = math.Sqrt(std / float64(len(returns)))
	if std == 0 {
		return nil, Errorf("neural_network", "flat price series, nothing to learn")
	}

	var sequences [][]float64
	var labels []float64
	for i := seqLen; i < len(returns); i++ {
		seq := make([]float64, seqLen)
		for j := 0; j < seqLen; j++ {
			seq[j] = returns[i-seqLen+j] / std
		}
		sequences = append(sequences, seq)
		if returns[i] > 0 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	splitIdx := int(float64(len(sequences)) * 0.8)
	net := newFeedforward(seqLen, 8, rand.New(rand.NewSource(seed)))
	for e := 0; e < epochs; e++ {
		for i := 0; i < splitIdx; i++ {
			net.train(sequences[i], labels[i], 0.05)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	correct := 0
	for i := splitIdx; i < len(sequences); i++ {
		p := net.forward(sequences[i])
		if (p >= 0.5) == (labels[i] == 1) {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(sequences)-splitIdx)

	// Probability for the most recent window
	latest := make([]float64, seqLen)
	for j := 0; j < seqLen; j++ {
		latest[j] = returns[len(returns)-seqLen+j] / std
	}
	probability := net.forward(latest)

	direction := "down"
	hint := "hold"
	if probability >= 0.5 {
		direction = "up"
	}
	if probability > 0.6 && accuracy > 0.5 {
		hint = "buy"
	} else if probability < 0.4 && accuracy > 0.5 {
		hint = "sell"
	}

	certainty := math.Abs(probability - 0.5) * 2
	confidence := accuracy*0.6 + certainty*0.4
	if err := checkConfidence("neural_network", confidence); err != nil {
		return nil, err
	}

	return &Result{
		Summary: fmt.Sprintf(
			"Neural pattern recognition: next move %s (p=%.2f). Validation accuracy %.1f%%.",
			direction, probability, accuracy*100,
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload: map[string]interface{}{
			"probability":     probability,
			"direction":       direction,
			"accuracy":        accuracy,
			"epochs":          epochs,
			"sequence_length": seqLen,
			"seed":            seed,
			"train_samples":   splitIdx,
			"test_samples":    len(sequences) - splitIdx,
		},
	}, nil
}

func dailyReturns(series *marketdata.Series) []float64 {
	newest := series.Closes()
	returns := make([]float64, 0, len(newest)-1)
	// Build oldest-first returns
	for i := len(newest) - 1; i > 0; i-- {
		if newest[i] == 0 {
			continue
		}
		returns = append(returns, newest[i-1]/newest[i]-1)
	}
	return returns
}

// feedforward is a 1-hidden-layer network with tanh activation and a
// sigmoid output.
type feedforward struct {
	inputDim  int
	hiddenDim int
	w1        [][]float64
	b1        []float64
	w2        []float64
	b2        float64
}

func newFeedforward(inputDim, hiddenDim int, rng *rand.Rand) *feedforward {
	net := &feedforward{
		inputDim:  inputDim,
		hiddenDim: hiddenDim,
		w1:        make([][]float64, hiddenDim),
		b1:        make([]float64, hiddenDim),
		w2:        make([]float64, hiddenDim),
	}
	scale := 1 / math.Sqrt(float64(inputDim))
	for h := 0; h < hiddenDim; h++ {
		net.w1[h] = make([]float64, inputDim)
		for i := range net.w1[h] {
			net.w1[h][i] = (rng.Float64()*2 - 1) * scale
		}
		net.w2[h] = (rng.Float64()*2 - 1) * scale
	}
	return net
}

func (n *feedforward) hidden(x []float64) []float64 {
	h := make([]float64, n.hiddenDim)
	for j := 0; j < n.hiddenDim; j++ {
		sum := n.b1[j]
		for i, xi := range x {
			sum += n.w1[j][i] * xi
		}
		h[j] = math.Tanh(sum)
	}
	return h
}

func (n *feedforward) forward(x []float64) float64 {
	h := n.hidden(x)
	sum := n.b2
	for j, hj := range h {
		sum += n.w2[j] * hj
	}
	return 1 / (1 + math.Exp(-sum))
}

// train runs one SGD step on a single example with cross-entropy loss.
func (n *feedforward) train(x []float64, y, lr float64) {
	h := n.hidden(x)
	sum := n.b2
	for j, hj := range h {
		sum += n.w2[j] * hj
	}
	out := 1 / (1 + math.Exp(-sum))
	dOut := out - y

	for j := 0; j < n.hiddenDim; j++ {
		dHidden := dOut * n.w2[j] * (1 - h[j]*h[j])
		n.w2[j] -= lr * dOut * h[j]
		for i, xi := range x {
			n.w1[j][i] -= lr * dHidden * xi
		}
		n.b1[j] -= lr * dHidden
	}
	n.b2 -= lr * dOut
}
