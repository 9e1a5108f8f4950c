package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNoData is returned when the upstream source has no candles for a
// symbol/period. Analysis modules translate it into an analysis failure.
var ErrNoData = errors.New("no market data available")

// Candle is one OHLCV bar.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Series holds the candles for one (symbol, period) request, oldest first.
type Series struct {
	Symbol  string   `json:"symbol"`
	Period  string   `json:"period"`
	Candles []Candle `json:"candles"`
}

// Closes returns closing prices newest-first, the order the indicator
// helpers expect.
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		closes[len(s.Candles)-1-i] = c.Close
	}
	return closes
}

// Len returns the number of candles.
func (s *Series) Len() int { return len(s.Candles) }

// LastClose returns the most recent closing price, or 0 for an empty series.
func (s *Series) LastClose() float64 {
	if len(s.Candles) == 0 {
		return 0
	}
	return s.Candles[len(s.Candles)-1].Close
}

// Snapshot is the current market state the strategy engine evaluates
// decisions against.
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	RSI       float64   `json:"rsi"`
	Timestamp time.Time `json:"timestamp"`
}

// Headline is one news item for the sentiment scorer.
type Headline struct {
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher"`
	PublishedAt time.Time `json:"published_at"`
}

// Provider supplies OHLCV series and current snapshots. All analysis runs
// go through this boundary; a provider failure surfaces as a module-level
// analysis error, never as an executor fault.
type Provider interface {
	GetSeries(ctx context.Context, symbol, period string) (*Series, error)
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// NewsSource supplies recent headlines for a symbol.
type NewsSource interface {
	Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error)
}

// ResearchSource supplies fundamentals and analyst data for the research
// agent.
type ResearchSource interface {
	Fundamentals(ctx context.Context, symbol string) (map[string]interface{}, error)
}

// HTTPProvider fetches market data over HTTP with an optional MongoDB
// cache in front of the upstream API.
type HTTPProvider struct {
	baseURL    string
	newsURL    string
	httpClient *http.Client
	cache      *MongoCache
}

// NewHTTPProvider creates a provider against the configured upstream.
// cache may be nil, in which case every request goes upstream.
func NewHTTPProvider(baseURL, newsURL string, cache *MongoCache) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		newsURL: strings.TrimRight(newsURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}
}

// chartResponse mirrors the upstream chart API payload.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetSeries fetches OHLCV candles for a symbol. Cached series younger than
// one hour are served without touching the upstream.
func (p *HTTPProvider) GetSeries(ctx context.Context, symbol, period string) (*Series, error) {
	if p.cache != nil {
		if series, ok := p.cache.GetSeries(ctx, symbol, period); ok {
			return series, nil
		}
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d", p.baseURL, symbol, period)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "finproof/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market data request failed: status %d", resp.StatusCode)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode market data: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("market data error: %s", payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoData
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	series := &Series{Symbol: symbol, Period: period}
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}
		series.Candles = append(series.Candles, Candle{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  quote.Close[i],
			Volume: at(quote.Volume, i),
		})
	}
	if len(series.Candles) == 0 {
		return nil, ErrNoData
	}

	if p.cache != nil {
		p.cache.PutSeries(ctx, series)
	}
	return series, nil
}

// GetSnapshot returns the latest price and 14-day RSI for a symbol.
func (p *HTTPProvider) GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	series, err := p.GetSeries(ctx, symbol, "3mo")
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Symbol:    symbol,
		Price:     series.LastClose(),
		RSI:       CalculateRSI(series.Closes(), 14),
		Timestamp: time.Now().UTC(),
	}, nil
}

// newsResponse mirrors the upstream news search payload.
type newsResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// Headlines fetches recent news headlines for a symbol.
func (p *HTTPProvider) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	url := fmt.Sprintf("%s/v1/finance/search?q=%s&newsCount=%d", p.newsURL, symbol, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "finproof/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news request failed: status %d", resp.StatusCode)
	}

	var payload newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode news: %w", err)
	}

	headlines := make([]Headline, 0, len(payload.News))
	for _, n := range payload.News {
		headlines = append(headlines, Headline{
			Title:       n.Title,
			Publisher:   n.Publisher,
			PublishedAt: time.Unix(n.ProviderPublishTime, 0).UTC(),
		})
	}
	return headlines, nil
}

// Fundamentals fetches summary fundamentals for a symbol.
func (p *HTTPProvider) Fundamentals(ctx context.Context, symbol string) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=summaryDetail,financialData,recommendationTrend", p.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "finproof/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fundamentals request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fundamentals request failed: status %d", resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode fundamentals: %w", err)
	}
	return payload, nil
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}
