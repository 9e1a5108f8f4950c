package analysis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"finproof/services/marketdata"
)

// sentimentScorer scores recent news headlines against a finance-specific
// sentiment lexicon. Network-bound: runs under the executor's nlp timeout.
type sentimentScorer struct {
	news marketdata.NewsSource
}

func newSentimentScorer(news marketdata.NewsSource) *sentimentScorer {
	return &sentimentScorer{news: news}
}

// Finance-specific sentiment lexicon, English and German.
var positiveWords = wordSet(
	"buy", "bullish", "upgrade", "growth", "profit", "gain", "surge",
	"rally", "breakthrough", "beat", "exceed", "record", "strong",
	"positive", "optimistic", "outperform", "winner", "success",
	"momentum", "breakout", "opportunity", "kaufen", "stark", "wachstum",
	"gewinn", "durchbruch", "erfolg", "positiv", "chancen",
)

var negativeWords = wordSet(
	"sell", "bearish", "downgrade", "loss", "decline", "drop", "crash",
	"fall", "miss", "weak", "negative", "warning", "risk", "concern",
	"underperform", "loser", "failure", "bankruptcy", "fraud", "lawsuit",
	"verkaufen", "schwach", "verlust", "risiko", "warnung", "absturz",
	"krise", "pleite", "negativ",
)

var wordPattern = regexp.MustCompile(`[a-zA-ZäöüÄÖÜß]+`)

func (s *sentimentScorer) Descriptor() Descriptor {
	return Descriptor{
		Name:          "sentiment",
		DisplayName:   "Sentiment & News Analysis",
		Category:      CategoryNLP,
		Description:   "Measures market mood from news headlines",
		MinDataPoints: 1,
		DefaultParams: map[string]interface{}{
			"max_articles": 20,
		},
	}
}

func (s *sentimentScorer) ValidateParams(params map[string]interface{}) error {
	return validateIntRange("sentiment", params, "max_articles", 5, 50)
}

func (s *sentimentScorer) Analyze(ctx context.Context, params Params, series *marketdata.Series) (*Result, error) {
	if s.news == nil {
		return nil, Errorf("sentiment", "no news source configured")
	}

	maxArticles := intParam(params.Raw, "max_articles", 20)

	headlines, err := s.news.Headlines(ctx, params.Symbol, maxArticles)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, RetryableErrorf("sentiment", "news source failed: %v", err)
	}

	if len(headlines) == 0 {
		return &Result{
			Summary:    fmt.Sprintf("No news found for %s sentiment analysis.", params.Symbol),
			Confidence: 0.3,
			ActionHint: "hold",
			Payload: map[string]interface{}{
				"article_count": 0,
			},
		}, nil
	}

	var positive, negative int
	for _, h := range headlines {
		p, n := scoreText(h.Title)
		positive += p
		negative += n
	}

	total := positive + negative
	score := 0.0
	if total > 0 {
		score = float64(positive-negative) / float64(total)
	}

	mood := "neutral"
	hint := "hold"
	if score > 0.2 {
		mood = "positive"
		hint = "buy"
	} else if score < -0.2 {
		mood = "negative"
		hint = "sell"
	}

	// More articles and a clearer lean both raise confidence
	confidence := 0.3 + 0.02*float64(min(len(headlines), 20)) + 0.2*abs(score)
	if confidence > 0.9 {
		confidence = 0.9
	}
	if err := checkConfidence("sentiment", confidence); err != nil {
		return nil, err
	}

	return &Result{
		Summary: fmt.Sprintf(
			"Sentiment across %d headlines is %s (score %+.2f, %d positive / %d negative signals).",
			len(headlines), mood, score, positive, negative,
		),
		Confidence: confidence,
		ActionHint: hint,
		Payload: map[string]interface{}{
			"article_count":  len(headlines),
			"score":          score,
			"positive_words": positive,
			"negative_words": negative,
			"mood":           mood,
		},
	}, nil
}

// scoreText counts lexicon hits in one headline.
func scoreText(text string) (positive, negative int) {
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if positiveWords[word] {
			positive++
		}
		if negativeWords[word] {
			negative++
		}
	}
	return positive, negative
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
