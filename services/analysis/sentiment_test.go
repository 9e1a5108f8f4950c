package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"finproof/services/marketdata"

	"github.com/stretchr/testify/require"
)

type fakeNews struct {
	headlines []marketdata.Headline
	err       error
}

func (f *fakeNews) Headlines(ctx context.Context, symbol string, limit int) ([]marketdata.Headline, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.headlines) {
		return f.headlines[:limit], nil
	}
	return f.headlines, nil
}

type fakeResearch struct {
	data map[string]interface{}
	err  error
}

func (f *fakeResearch) Fundamentals(ctx context.Context, symbol string) (map[string]interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func headlines(titles ...string) []marketdata.Headline {
	out := make([]marketdata.Headline, len(titles))
	for i, title := range titles {
		out[i] = marketdata.Headline{Title: title, Publisher: "wire", PublishedAt: time.Now()}
	}
	return out
}

func TestSentimentPositiveHeadlines(t *testing.T) {
	news := &fakeNews{headlines: headlines(
		"Analysts upgrade stock after record profit",
		"Strong growth and bullish momentum continue",
		"Company beats expectations, shares surge",
	)}
	module := newSentimentScorer(news)

	result, err := module.Analyze(context.Background(), Params{Symbol: "AAPL"}, nil)
	require.NoError(t, err)
	require.Equal(t, "buy", result.ActionHint)
	require.Greater(t, result.Confidence, 0.3)
	require.LessOrEqual(t, result.Confidence, 0.9)
}

func TestSentimentNegativeHeadlines(t *testing.T) {
	news := &fakeNews{headlines: headlines(
		"Fraud lawsuit raises bankruptcy concern",
		"Shares crash after weak guidance and downgrade",
	)}
	module := newSentimentScorer(news)

	result, err := module.Analyze(context.Background(), Params{Symbol: "AAPL"}, nil)
	require.NoError(t, err)
	require.Equal(t, "sell", result.ActionHint)
}

func TestSentimentGermanLexicon(t *testing.T) {
	news := &fakeNews{headlines: headlines(
		"Starkes Wachstum und hoher Gewinn erwartet",
		"Analysten sehen Chancen nach Durchbruch",
	)}
	module := newSentimentScorer(news)

	result, err := module.Analyze(context.Background(), Params{Symbol: "SAP"}, nil)
	require.NoError(t, err)
	require.Equal(t, "buy", result.ActionHint)
}

func TestSentimentNoNewsIsNeutralNotError(t *testing.T) {
	module := newSentimentScorer(&fakeNews{})

	result, err := module.Analyze(context.Background(), Params{Symbol: "OBSCURE"}, nil)
	require.NoError(t, err)
	require.Equal(t, "hold", result.ActionHint)
	require.InDelta(t, 0.3, result.Confidence, 1e-9)
}

func TestSentimentSourceFailureIsRetryable(t *testing.T) {
	module := newSentimentScorer(&fakeNews{err: errors.New("connection reset")})

	_, err := module.Analyze(context.Background(), Params{Symbol: "AAPL"}, nil)
	require.Error(t, err)

	var analysisErr *Error
	require.ErrorAs(t, err, &analysisErr)
	require.True(t, analysisErr.Retryable)
}

func TestSentimentCancelledContextIsNotRetryable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	module := newSentimentScorer(&fakeNews{err: context.Canceled})

	_, err := module.Analyze(ctx, Params{Symbol: "AAPL"}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResearchAgentScoresFundamentals(t *testing.T) {
	research := &fakeResearch{data: map[string]interface{}{
		"summaryDetail": map[string]interface{}{
			"trailingPE": map[string]interface{}{"raw": 12.0},
		},
		"financialData": map[string]interface{}{
			"profitMargins":     map[string]interface{}{"raw": 0.25},
			"targetMeanPrice":   map[string]interface{}{"raw": 150.0},
			"currentPrice":      map[string]interface{}{"raw": 100.0},
			"recommendationKey": "buy",
		},
	}}
	module := newResearchAgent(research)

	result, err := module.Analyze(context.Background(), Params{Symbol: "AAPL"}, nil)
	require.NoError(t, err)
	require.Equal(t, "buy", result.ActionHint)
	require.GreaterOrEqual(t, result.Confidence, 0.4)
	require.LessOrEqual(t, result.Confidence, 0.75)
}

func TestResearchAgentSourceFailureIsRetryable(t *testing.T) {
	module := newResearchAgent(&fakeResearch{err: errors.New("upstream 502")})

	_, err := module.Analyze(context.Background(), Params{Symbol: "AAPL"}, nil)
	require.Error(t, err)

	var analysisErr *Error
	require.ErrorAs(t, err, &analysisErr)
	require.True(t, analysisErr.Retryable)
}
