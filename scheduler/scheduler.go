package scheduler

// Package scheduler runs the recurring maintenance work around the job
// pipeline:
// - failing running jobs orphaned by a dead worker
// - nightly re-analysis of symbols the bot has traded
// - purging stale market data cache entries
//
// The schedules are defined in jobs.go
