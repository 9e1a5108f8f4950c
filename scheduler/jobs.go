package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"finproof/models"
	"finproof/services/jobs"
	"finproof/services/marketdata"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Running jobs older than this are assumed orphaned by a dead worker.
const stuckJobAge = 30 * time.Minute

// Analyses re-run nightly for every traded symbol.
var nightlyAnalyses = []string{"trend_forecast", "sentiment"}

// Scheduler manages recurring maintenance jobs
type Scheduler struct {
	cron     *gocron.Scheduler
	db       *gorm.DB
	jobStore *jobs.Store
	cache    *marketdata.MongoCache
}

// NewScheduler creates a new scheduler instance. cache may be nil.
func NewScheduler(db *gorm.DB, jobStore *jobs.Store, cache *marketdata.MongoCache) *Scheduler {
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		db:       db,
		jobStore: jobStore,
		cache:    cache,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Fail jobs orphaned by a dead worker every 10 minutes
	s.cron.Every(10).Minutes().Do(func() {
		s.failStuckJobs()
	})

	// Re-analyze traded symbols nightly at 02:00
	s.cron.Every(1).Day().At("02:00").Do(func() {
		s.submitNightlyAnalyses()
	})

	// Purge stale cached market data daily at 03:00
	s.cron.Every(1).Day().At("03:00").Do(func() {
		s.purgeStaleCache()
	})

	// Log queue statistics hourly
	s.cron.Every(1).Hour().Do(func() {
		s.logStatistics()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// failStuckJobs fails running jobs whose worker died mid-flight. The jobs
// stay in the table with an explanatory message.
func (s *Scheduler) failStuckJobs() {
	stuck, err := s.jobStore.StuckRunning(stuckJobAge)
	if err != nil {
		log.Printf("Error querying stuck jobs: %v", err)
		return
	}

	for _, job := range stuck {
		msg := fmt.Sprintf("abandoned after %s without completing", stuckJobAge)
		if err := s.jobStore.Fail(job.ID, msg); err != nil {
			log.Printf("Error failing stuck job %d: %v", job.ID, err)
		}
	}
	if len(stuck) > 0 {
		log.Printf("Failed %d stuck jobs", len(stuck))
	}
}

// submitNightlyAnalyses queues fresh analyses for every symbol the bot has
// traded in the last 30 days.
func (s *Scheduler) submitNightlyAnalyses() {
	log.Println("Submitting nightly analyses...")

	cutoff := time.Now().AddDate(0, 0, -30)
	var symbols []string
	err := s.db.Model(&models.Trade{}).
		Where("created_at > ?", cutoff).
		Distinct("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		log.Printf("Error loading traded symbols: %v", err)
		return
	}

	count := 0
	for _, symbol := range symbols {
		created, err := s.jobStore.SubmitBatch(symbol, nightlyAnalyses, nil)
		if err != nil {
			log.Printf("Error submitting nightly analyses for %s: %v", symbol, err)
			continue
		}
		count += len(created)
	}
	log.Printf("Submitted %d nightly analysis jobs for %d symbols", count, len(symbols))
}

// purgeStaleCache drops cached market data series past their freshness
// window.
func (s *Scheduler) purgeStaleCache() {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.cache.PurgeStale(ctx, 24*time.Hour); err != nil {
		log.Printf("Error purging market data cache: %v", err)
		return
	}
	log.Println("Purged stale market data cache entries")
}

// logStatistics logs job counts per status.
func (s *Scheduler) logStatistics() {
	counts, err := s.jobStore.Counts()
	if err != nil {
		log.Printf("Error computing job statistics: %v", err)
		return
	}
	log.Printf("Job queue: %d pending, %d running, %d completed, %d failed",
		counts[models.JobStatusPending], counts[models.JobStatusRunning],
		counts[models.JobStatusCompleted], counts[models.JobStatusFailed])
}
