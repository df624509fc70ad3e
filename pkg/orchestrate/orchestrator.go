package orchestrate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/crawler"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// JobResult contains the outcome of one job's run
type JobResult struct {
	JobKey    string
	SessionID string
	Status    models.SessionStatus
	Extracted int
	Errors    int // Length of the session error log
	Error     error
	Duration  time.Duration
}

// Success reports whether the run completed
func (r JobResult) Success() bool {
	return r.Error == nil && r.Status == models.SessionStatusCompleted
}

// Orchestrator runs several configured jobs concurrently, each in its own session,
// with at most max_concurrent_sessions running at once
type Orchestrator struct {
	engine  *crawler.Engine
	appCfg  *config.AppConfig
	log     *logrus.Entry
	jobKeys []string
	slots   *semaphore.Weighted
}

// NewOrchestrator creates an orchestrator for jobKeys
func NewOrchestrator(engine *crawler.Engine, appCfg *config.AppConfig, jobKeys []string, log *logrus.Entry) *Orchestrator {
	limit := appCfg.MaxConcurrentSessions
	if limit <= 0 {
		limit = 1
	}
	return &Orchestrator{
		engine:  engine,
		appCfg:  appCfg,
		log:     log.WithField("component", "orchestrator"),
		jobKeys: jobKeys,
		slots:   semaphore.NewWeighted(int64(limit)),
	}
}

// Run executes every job and waits for all of them. Results follow jobKeys order.
func (o *Orchestrator) Run(ctx context.Context) []JobResult {
	startTime := time.Now()
	o.log.Infof("Running %d job(s): %v", len(o.jobKeys), o.jobKeys)

	results := make([]JobResult, len(o.jobKeys))
	var wg sync.WaitGroup
	for i, key := range o.jobKeys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i] = o.runJob(ctx, key)
		}(i, key)
	}
	wg.Wait()

	o.logSummary(results, time.Since(startTime))
	return results
}

// runJob runs one job once a session slot is free. An unknown key still gets a session,
// which the engine records as failed.
func (o *Orchestrator) runJob(ctx context.Context, key string) JobResult {
	result := JobResult{JobKey: key}
	jobLog := o.log.WithField("job", key)

	var jobCfg *config.Configuration
	job, lookupErr := o.appCfg.Job(key)
	if lookupErr != nil {
		jobLog.Error(lookupErr)
	} else {
		jobCfg = &job
	}

	if err := o.slots.Acquire(ctx, 1); err != nil {
		result.Error = fmt.Errorf("waiting for a session slot: %w", err)
		jobLog.Warn(result.Error)
		return result
	}
	defer o.slots.Release(1)

	startTime := time.Now()
	final, err := o.engine.Run(ctx, crawler.Job{Key: key, Config: jobCfg})
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Error = err
		jobLog.Errorf("Run could not start: %v", err)
		return result
	}

	result.SessionID = final.ID
	result.Status = final.Status
	result.Extracted = len(final.Results)
	result.Errors = len(final.Errors)
	result.Error = lookupErr
	return result
}

// logSummary logs a summary of all job results
func (o *Orchestrator) logSummary(results []JobResult, totalDuration time.Duration) {
	o.log.Info("============================================")
	o.log.Infof("Jobs finished in %v", totalDuration)

	totalRecords := 0
	successCount := 0
	for _, r := range results {
		status := r.Status.String()
		if r.Success() {
			successCount++
		} else if r.Error != nil {
			status = "ERROR"
		}
		totalRecords += r.Extracted

		o.log.Infof("  %s: %s - %d records, %d page error(s) in %v (session %s)",
			r.JobKey, status, r.Extracted, r.Errors, r.Duration.Round(time.Millisecond), r.SessionID)
		if r.Error != nil {
			o.log.Infof("    Error: %v", r.Error)
		}
	}

	o.log.Info("--------------------------------------------")
	o.log.Infof("Total: %d jobs (%d completed, %d not), %d records extracted",
		len(results), successCount, len(results)-successCount, totalRecords)
	o.log.Info("============================================")
}

// ValidateJobKeys checks that all provided job keys exist in the config
func ValidateJobKeys(appCfg *config.AppConfig, jobKeys []string) error {
	for _, key := range jobKeys {
		if _, exists := appCfg.Jobs[key]; !exists {
			return fmt.Errorf("%w: job '%s'. Available jobs: %s",
				utils.ErrConfigurationNotFound, key, strings.Join(appCfg.JobKeys(), ", "))
		}
	}
	return nil
}

// GetAllJobKeys returns all job keys from the config, sorted
func GetAllJobKeys(appCfg *config.AppConfig) []string {
	return appCfg.JobKeys()
}
