package jobs

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"finproof/models"
	"finproof/services/analysis"
	"finproof/services/marketdata"

	"github.com/stretchr/testify/require"
)

// fakeProvider serves a canned series and can fail a configurable number
// of times before succeeding.
type fakeProvider struct {
	mu          sync.Mutex
	series      *marketdata.Series
	errBySymbol map[string]error
	failTimes   int
	calls       int
}

func (f *fakeProvider) GetSeries(ctx context.Context, symbol, period string) (*marketdata.Series, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errBySymbol[symbol]; ok {
		return nil, err
	}
	if f.calls <= f.failTimes {
		return nil, fmt.Errorf("upstream hiccup on call %d", f.calls)
	}
	return f.series, nil
}

func (f *fakeProvider) GetSnapshot(ctx context.Context, symbol string) (*marketdata.Snapshot, error) {
	return &marketdata.Snapshot{Symbol: symbol, Price: 100, RSI: 50, Timestamp: time.Now()}, nil
}

func makeSeries(symbol string, n int) *marketdata.Series {
	candles := make([]marketdata.Candle, n)
	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := 100 + 10*math.Sin(float64(i)/7) + 0.1*float64(i)
		candles[i] = marketdata.Candle{
			Date:   day.AddDate(0, 0, i),
			Open:   price - 0.5,
			High:   price + 1,
			Low:    price - 1,
			Close:  price,
			Volume: 1_000_000,
		}
	}
	return &marketdata.Series{Symbol: symbol, Period: "1y", Candles: candles}
}

func newTestExecutor(t *testing.T, provider marketdata.Provider, opts ExecutorOptions) (*Executor, *Store) {
	t.Helper()
	registry := analysis.NewRegistry(analysis.Deps{})
	store := NewStore(newTestDB(t), registry)
	return NewExecutor(store, registry, provider, opts), store
}

func TestExecutorCompletesJob(t *testing.T) {
	provider := &fakeProvider{series: makeSeries("AAPL", 120)}
	executor, store := newTestExecutor(t, provider, ExecutorOptions{})

	var completed []uint
	executor.OnComplete(func(job *models.Job, result *analysis.Result) {
		completed = append(completed, job.ID)
	})

	job, err := store.Submit("AAPL", "mean_reversion", nil)
	require.NoError(t, err)

	executor.drainQueue()

	done, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, done.Status)

	result, err := store.GetResult(job.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Confidence, 0.0)
	require.LessOrEqual(t, result.Confidence, 1.0)
	require.NotEmpty(t, result.Summary)

	require.Equal(t, []uint{job.ID}, completed)
}

func TestExecutorFailureDoesNotStopTheQueue(t *testing.T) {
	provider := &fakeProvider{
		series:      makeSeries("MSFT", 120),
		errBySymbol: map[string]error{"EMPTY": marketdata.ErrNoData},
	}
	executor, store := newTestExecutor(t, provider, ExecutorOptions{MaxAttempts: 1})

	noData, err := store.Submit("EMPTY", "mean_reversion", nil)
	require.NoError(t, err)
	good, err := store.Submit("MSFT", "mean_reversion", nil)
	require.NoError(t, err)

	executor.drainQueue()

	failed, err := store.Get(noData.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, failed.Status)
	require.Contains(t, failed.ErrorMessage, "no market data")

	// the failing job did not take the loop down
	done, err := store.Get(good.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, done.Status)
}

func TestExecutorRetriesTransientErrors(t *testing.T) {
	provider := &fakeProvider{series: makeSeries("AAPL", 120), failTimes: 2}
	executor, store := newTestExecutor(t, provider, ExecutorOptions{
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
	})

	job, err := store.Submit("AAPL", "mean_reversion", nil)
	require.NoError(t, err)

	executor.drainQueue()

	done, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, done.Status)
	require.Equal(t, 3, provider.calls)
}

func TestExecutorExhaustsRetriesThenFails(t *testing.T) {
	provider := &fakeProvider{series: makeSeries("AAPL", 120), failTimes: 10}
	executor, store := newTestExecutor(t, provider, ExecutorOptions{
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
	})

	job, err := store.Submit("AAPL", "mean_reversion", nil)
	require.NoError(t, err)

	executor.drainQueue()

	done, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, done.Status)
	require.Contains(t, done.ErrorMessage, "failed after 2 attempts")
	require.Equal(t, 2, provider.calls)
}

func TestExecutorAppliesStoredParameters(t *testing.T) {
	provider := &fakeProvider{series: makeSeries("AAPL", 120)}
	executor, store := newTestExecutor(t, provider, ExecutorOptions{})

	var results []*analysis.Result
	executor.OnComplete(func(job *models.Job, result *analysis.Result) {
		results = append(results, result)
	})

	// the executor reloads the job from the database, where parameters
	// live in a JSON column; the submitted seed must still win over the
	// module default
	_, err := store.Submit("AAPL", "risk_simulation", map[string]interface{}{
		"seed":       7,
		"iterations": 500,
	})
	require.NoError(t, err)

	executor.drainQueue()

	require.Len(t, results, 1)
	require.Equal(t, int64(7), results[0].Payload["seed"])
	require.Equal(t, 500, results[0].Payload["iterations"])
}

// slowNews never answers before the deadline.
type slowNews struct{}

func (slowNews) Headlines(ctx context.Context, symbol string, limit int) ([]marketdata.Headline, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecutorTimesOutSlowNLPJobs(t *testing.T) {
	provider := &fakeProvider{series: makeSeries("MSFT", 120)}
	registry := analysis.NewRegistry(analysis.Deps{News: slowNews{}})
	store := NewStore(newTestDB(t), registry)
	executor := NewExecutor(store, registry, provider, ExecutorOptions{
		MaxAttempts: 1,
		NLPTimeout:  20 * time.Millisecond,
	})

	slow, err := store.Submit("AAPL", "sentiment", nil)
	require.NoError(t, err)
	good, err := store.Submit("MSFT", "mean_reversion", nil)
	require.NoError(t, err)

	executor.drainQueue()

	failed, err := store.Get(slow.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, failed.Status)
	require.Contains(t, failed.ErrorMessage, "timeout: sentiment exceeded the 20ms limit")

	// the timed-out job did not take the loop down
	done, err := store.Get(good.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, done.Status)
}

func TestExecutorStartStop(t *testing.T) {
	provider := &fakeProvider{series: makeSeries("AAPL", 120)}
	executor, store := newTestExecutor(t, provider, ExecutorOptions{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
	})

	job, err := store.Submit("AAPL", "mean_reversion", nil)
	require.NoError(t, err)

	require.NoError(t, executor.Start())
	require.Error(t, executor.Start()) // already running

	require.Eventually(t, func() bool {
		current, err := store.Get(job.ID)
		return err == nil && current.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)

	executor.Stop()
	require.False(t, executor.IsRunning())
}
