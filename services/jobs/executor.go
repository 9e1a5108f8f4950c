package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"finproof/models"
	"finproof/services/analysis"
	"finproof/services/marketdata"
)

// CompletionHandler is invoked after a job reaches completed, outside the
// persistence transaction.
type CompletionHandler func(job *models.Job, result *analysis.Result)

// FailureHandler is invoked after a job reaches failed.
type FailureHandler func(job *models.Job, message string)

// ExecutorOptions configures the worker pool.
type ExecutorOptions struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	NLPTimeout   time.Duration
}

// Executor runs pending jobs on a bounded worker pool. Workers poll the
// store oldest-first and race for jobs via Claim; a lost race is skipped,
// not treated as an error. One failing or panicking job never takes the
// pool down.
type Executor struct {
	store      *Store
	registry   *analysis.Registry
	provider   marketdata.Provider
	opts       ExecutorOptions
	onComplete CompletionHandler
	onFail     FailureHandler

	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mutex     sync.RWMutex
}

// NewExecutor creates an executor. Handlers may be nil.
func NewExecutor(store *Store, registry *analysis.Registry, provider marketdata.Provider, opts ExecutorOptions) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.NLPTimeout <= 0 {
		opts.NLPTimeout = 45 * time.Second
	}
	return &Executor{
		store:    store,
		registry: registry,
		provider: provider,
		opts:     opts,
		stopChan: make(chan struct{}),
	}
}

// OnComplete registers the completion hook. Must be called before Start.
func (e *Executor) OnComplete(fn CompletionHandler) { e.onComplete = fn }

// OnFail registers the failure hook. Must be called before Start.
func (e *Executor) OnFail(fn FailureHandler) { e.onFail = fn }

// Start launches the worker pool.
func (e *Executor) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.isRunning {
		return fmt.Errorf("job executor is already running")
	}

	e.isRunning = true
	e.stopChan = make(chan struct{})
	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}

	log.Printf("Job executor started with %d workers", e.opts.Workers)
	return nil
}

// Stop signals all workers and waits for in-flight jobs to finish.
func (e *Executor) Stop() {
	e.mutex.Lock()
	if !e.isRunning {
		e.mutex.Unlock()
		return
	}
	e.isRunning = false
	close(e.stopChan)
	e.mutex.Unlock()

	e.wg.Wait()
	log.Println("Job executor stopped")
}

// IsRunning returns whether the pool is active.
func (e *Executor) IsRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.isRunning
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.drainQueue()
		}
	}
}

// drainQueue processes pending jobs until the queue is empty or the
// executor is stopped.
func (e *Executor) drainQueue() {
	for {
		select {
		case <-e.stopChan:
			return
		default:
		}

		job, err := e.store.NextPending()
		if err != nil {
			log.Printf("Failed to poll job queue: %v", err)
			return
		}
		if job == nil {
			return
		}

		if err := e.store.Claim(job.ID); err != nil {
			if errors.Is(err, ErrConflict) {
				continue // another worker won the race
			}
			log.Printf("Failed to claim job %d: %v", job.ID, err)
			return
		}
		e.process(job)
	}
}

// process runs a claimed job to a terminal state. Panics in analysis code
// are converted into a job failure.
func (e *Executor) process(job *models.Job) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(job, fmt.Sprintf("analysis panicked: %v", r))
		}
	}()

	module, ok := e.registry.Resolve(job.AnalysisType)
	if !ok {
		e.fail(job, fmt.Sprintf("analysis module %q is not registered", job.AnalysisType))
		return
	}

	result, err := e.runWithRetry(module, job)
	if err != nil {
		e.fail(job, err.Error())
		return
	}

	if err := e.store.Complete(job.ID, result); err != nil {
		log.Printf("Failed to persist result for job %d: %v", job.ID, err)
		return
	}
	log.Printf("Job %d (%s %s) completed with confidence %.2f",
		job.ID, job.AnalysisType, job.Symbol, result.Confidence)
	if e.onComplete != nil {
		e.onComplete(job, result)
	}
}

// runWithRetry executes the module, retrying transient analysis errors
// with linear backoff before giving up. Only errors marked retryable get
// another attempt; a validation or data error fails immediately.
func (e *Executor) runWithRetry(module analysis.Module, job *models.Job) (*analysis.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		result, err := e.runOnce(module, job)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var analysisErr *analysis.Error
		if !errors.As(err, &analysisErr) || !analysisErr.Retryable {
			return nil, err
		}
		if attempt == e.opts.MaxAttempts {
			break
		}

		backoff := time.Duration(attempt) * e.opts.RetryBackoff
		log.Printf("Job %d attempt %d/%d failed (%v), retrying in %s",
			job.ID, attempt, e.opts.MaxAttempts, err, backoff)
		select {
		case <-e.stopChan:
			return nil, lastErr
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", e.opts.MaxAttempts, lastErr)
}

// runOnce performs a single analysis attempt. Network-bound NLP modules
// run under a deadline; statistical and ML modules are local computation
// and get a plain background context.
func (e *Executor) runOnce(module analysis.Module, job *models.Job) (*analysis.Result, error) {
	desc := module.Descriptor()

	ctx := context.Background()
	if desc.Category == analysis.CategoryNLP {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.NLPTimeout)
		defer cancel()
	}

	// NLP modules talk to their own upstream source; only numeric
	// analyses consume price history.
	var series *marketdata.Series
	if desc.Category != analysis.CategoryNLP {
		var err error
		series, err = e.provider.GetSeries(ctx, job.Symbol, seriesPeriod(job))
		if err != nil {
			if errors.Is(err, marketdata.ErrNoData) {
				return nil, analysis.Errorf(desc.Name, "no market data available for %s", job.Symbol)
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("timeout: %s exceeded the %s limit for %s",
					desc.Name, e.opts.NLPTimeout, job.Symbol)
			}
			return nil, analysis.RetryableErrorf(desc.Name, "market data fetch failed: %v", err)
		}
	}

	params := analysis.Params{Symbol: job.Symbol, Raw: mergedParams(desc, job)}
	result, err := module.Analyze(ctx, params, series)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("timeout: %s exceeded the %s limit for %s",
				desc.Name, e.opts.NLPTimeout, job.Symbol)
		}
		return nil, err
	}
	return result, nil
}

// mergedParams overlays the job's parameters on the module defaults.
func mergedParams(desc analysis.Descriptor, job *models.Job) map[string]interface{} {
	merged := make(map[string]interface{}, len(desc.DefaultParams)+len(job.Parameters))
	for k, v := range desc.DefaultParams {
		merged[k] = v
	}
	for k, v := range job.Parameters {
		merged[k] = v
	}
	return merged
}

func seriesPeriod(job *models.Job) string {
	if raw, ok := job.Parameters["period"]; ok {
		if period, ok := raw.(string); ok && period != "" {
			return period
		}
	}
	return "1y"
}

func (e *Executor) fail(job *models.Job, message string) {
	if err := e.store.Fail(job.ID, message); err != nil {
		log.Printf("Failed to record failure for job %d: %v", job.ID, err)
		return
	}
	log.Printf("Job %d (%s %s) failed: %s", job.ID, job.AnalysisType, job.Symbol, message)
	if e.onFail != nil {
		e.onFail(job, message)
	}
}
