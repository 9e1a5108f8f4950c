package jobs

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"finproof/models"
	"finproof/services/analysis"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(t.TempDir(), "test.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.MigrateJobModels(db))
	require.NoError(t, models.MigrateStrategyModels(db))
	require.NoError(t, models.MigrateTradingModels(db))
	return db
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	registry := analysis.NewRegistry(analysis.Deps{})
	return NewStore(newTestDB(t), registry)
}

func TestSubmitCreatesPendingJob(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("aapl", "mean_reversion", map[string]interface{}{"lookback": 30})
	require.NoError(t, err)
	require.Equal(t, "AAPL", job.Symbol)
	require.Equal(t, models.JobStatusPending, job.Status)
	require.NotZero(t, job.ID)
	require.Nil(t, job.StartedAt)
	require.Nil(t, job.CompletedAt)
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Submit("AAPL", "astrology", nil)
	require.ErrorIs(t, err, ErrUnknownAnalysisType)
}

func TestSubmitRejectsInvalidParams(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Submit("AAPL", "mean_reversion", map[string]interface{}{"lookback": 5})
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = store.Submit("", "mean_reversion", nil)
	require.ErrorIs(t, err, ErrInvalidParameters)

	// nothing persisted
	list, err := store.List("", 10)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestClaimIsExclusive(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)

	require.NoError(t, store.Claim(job.ID))
	require.ErrorIs(t, store.Claim(job.ID), ErrConflict)

	claimed, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusRunning, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Claim(job.ID) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	require.Len(t, wins, 1)
}

func TestCompletePersistsResultAtomically(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)
	require.NoError(t, store.Claim(job.ID))

	result := &analysis.Result{
		Summary:    "trend looks flat",
		Confidence: 0.72,
		ActionHint: "hold",
		Payload:    map[string]interface{}{"forecast_days": 30},
	}
	require.NoError(t, store.Complete(job.ID, result))

	done, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	stored, err := store.GetResult(job.ID)
	require.NoError(t, err)
	require.Equal(t, "trend looks flat", stored.Summary)
	require.InDelta(t, 0.72, stored.Confidence, 1e-9)
}

func TestCompleteRejectsOutOfRangeConfidence(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)
	require.NoError(t, store.Claim(job.ID))

	err = store.Complete(job.ID, &analysis.Result{Summary: "x", Confidence: 1.2})
	require.Error(t, err)

	// the job is still running, nothing was committed
	still, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusRunning, still.Status)
	_, err = store.GetResult(job.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)
	require.NoError(t, store.Claim(job.ID))
	require.NoError(t, store.Fail(job.ID, "market data fetch failed: connection refused"))

	failed, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusFailed, failed.Status)
	require.Equal(t, "market data fetch failed: connection refused", failed.ErrorMessage)

	// no transition out of failed
	require.ErrorIs(t, store.Claim(job.ID), ErrConflict)
	require.ErrorIs(t, store.Fail(job.ID, "again"), ErrConflict)
	require.ErrorIs(t, store.Complete(job.ID, &analysis.Result{Summary: "x", Confidence: 0.5}), ErrConflict)
	require.ErrorIs(t, store.Cancel(job.ID), ErrConflict)
}

func TestCancelOnlyPendingJobs(t *testing.T) {
	store := newTestStore(t)

	job, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)
	require.NoError(t, store.Cancel(job.ID))

	cancelled, err := store.Get(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobStatusCancelled, cancelled.Status)

	running, err := store.Submit("MSFT", "trend_forecast", nil)
	require.NoError(t, err)
	require.NoError(t, store.Claim(running.ID))
	require.ErrorIs(t, store.Cancel(running.ID), ErrConflict)
}

func TestNextPendingIsOldestFirst(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Submit("AAPL", "trend_forecast", nil)
	require.NoError(t, err)
	second, err := store.Submit("MSFT", "trend_forecast", nil)
	require.NoError(t, err)

	next, err := store.NextPending()
	require.NoError(t, err)
	require.Equal(t, first.ID, next.ID)

	require.NoError(t, store.Claim(first.ID))

	next, err = store.NextPending()
	require.NoError(t, err)
	require.Equal(t, second.ID, next.ID)

	require.NoError(t, store.Claim(second.ID))

	next, err = store.NextPending()
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestSubmitBatchValidatesBeforeCreating(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SubmitBatch("AAPL", []string{"trend_forecast", "astrology"}, nil)
	require.ErrorIs(t, err, ErrUnknownAnalysisType)

	list, err := store.List("", 10)
	require.NoError(t, err)
	require.Empty(t, list)

	created, err := store.SubmitBatch("AAPL", []string{"trend_forecast", "mean_reversion"}, nil)
	require.NoError(t, err)
	require.Len(t, created, 2)
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)

	a, _ := store.Submit("AAPL", "trend_forecast", nil)
	store.Submit("MSFT", "trend_forecast", nil)
	require.NoError(t, store.Claim(a.ID))

	counts, err := store.Counts()
	require.NoError(t, err)
	require.Equal(t, int64(1), counts[models.JobStatusPending])
	require.Equal(t, int64(1), counts[models.JobStatusRunning])
}
