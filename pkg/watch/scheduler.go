package watch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/config"
	"github.com/Sriram-PR/field-scraper/pkg/crawler"
	"github.com/Sriram-PR/field-scraper/pkg/orchestrate"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Scheduler re-runs jobs on their interval
type Scheduler struct {
	engine       *crawler.Engine
	appCfg       *config.AppConfig
	jobKeys      []string
	intervals    map[string]time.Duration
	log          *logrus.Entry
	stateManager *StateManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	busy   sync.Mutex // Held while a batch of due jobs runs
}

// NewScheduler creates a watch scheduler. A job's own `schedule` overrides defaultInterval.
func NewScheduler(engine *crawler.Engine, appCfg *config.AppConfig, jobKeys []string, defaultInterval time.Duration, log *logrus.Entry) (*Scheduler, error) {
	if err := orchestrate.ValidateJobKeys(appCfg, jobKeys); err != nil {
		return nil, err
	}
	intervals := make(map[string]time.Duration, len(jobKeys))
	for _, key := range jobKeys {
		interval := defaultInterval
		if schedule := appCfg.Jobs[key].Schedule; schedule != "" {
			parsed, err := ParseInterval(schedule)
			if err != nil {
				return nil, fmt.Errorf("%w: job '%s' schedule: %v", utils.ErrConfigValidation, key, err)
			}
			interval = parsed
		}
		if interval <= 0 {
			return nil, fmt.Errorf("%w: job '%s' has no positive watch interval", utils.ErrConfigValidation, key)
		}
		intervals[key] = interval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		engine:       engine,
		appCfg:       appCfg,
		jobKeys:      jobKeys,
		intervals:    intervals,
		log:          log,
		stateManager: NewStateManager(appCfg.StateDir),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Run starts the watch scheduler and blocks until stopped
func (s *Scheduler) Run() error {
	// Load existing state
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %d jobs", len(s.jobKeys))
	s.logSchedule()

	// Run jobs that are already due
	s.runDueJobsAsync()

	ticker := time.NewTicker(s.calculateTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.engine.StopAll()
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runDueJobsAsync()
		}
	}
}

// Stop stops the watch scheduler and any runs it started
func (s *Scheduler) Stop() {
	s.log.Info("Stopping watch scheduler...")
	s.cancel()
}

// runDueJobsAsync runs due jobs in the background unless a previous batch is still running
func (s *Scheduler) runDueJobsAsync() {
	if !s.busy.TryLock() {
		s.log.Debug("Previous batch still running, skipping tick")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Unlock()
		s.runDueJobs(s.ctx)
	}()
}

// RunDue runs every due job once, waits for them, and saves state. Returns the results.
func (s *Scheduler) RunDue(ctx context.Context) []orchestrate.JobResult {
	s.busy.Lock()
	defer s.busy.Unlock()
	return s.runDueJobs(ctx)
}

// runDueJobs runs all jobs that are due
func (s *Scheduler) runDueJobs(ctx context.Context) []orchestrate.JobResult {
	dueJobs := s.getDueJobs()
	if len(dueJobs) == 0 {
		s.logNextRun()
		return nil
	}

	s.log.Infof("Running %d due jobs: %v", len(dueJobs), dueJobs)
	results := orchestrate.NewOrchestrator(s.engine, s.appCfg, dueJobs, s.log).Run(ctx)

	for _, result := range results {
		if ctx.Err() != nil && result.SessionID == "" {
			continue // Never started; keep it due
		}
		errorMsg := ""
		if result.Error != nil {
			errorMsg = result.Error.Error()
		}
		s.stateManager.UpdateJobState(result.JobKey, JobState{
			LastStatus:       result.Status,
			LastSessionID:    result.SessionID,
			RecordsExtracted: result.Extracted,
			ErrorMessage:     errorMsg,
		})
	}

	if err := s.stateManager.Save(); err != nil {
		s.log.Errorf("Failed to save watch state: %v", err)
	}

	s.logNextRun()
	return results
}

// getDueJobs returns jobs that are due for a run
func (s *Scheduler) getDueJobs() []string {
	var due []string
	for _, key := range s.jobKeys {
		if s.stateManager.ShouldRun(key, s.intervals[key]) {
			due = append(due, key)
		}
	}
	return due
}

// calculateTickInterval returns how often to check for due jobs
func (s *Scheduler) calculateTickInterval() time.Duration {
	shortest := time.Duration(0)
	for _, interval := range s.intervals {
		if shortest == 0 || interval < shortest {
			shortest = interval
		}
	}
	// Check at least every minute, or every 1/10th of the shortest interval
	checkInterval := shortest / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the current schedule
func (s *Scheduler) logSchedule() {
	s.log.Info("Watch schedule:")
	for _, key := range s.jobKeys {
		interval := s.intervals[key]
		state, exists := s.stateManager.GetJobState(key)
		if exists {
			nextRun := s.stateManager.GetNextRunTime(key, interval)
			s.log.Infof("  %s (every %s): last run %v (%s, %d records), next run %v",
				key,
				FormatInterval(interval),
				state.LastRunTime.Format(time.RFC3339),
				state.LastStatus,
				state.RecordsExtracted,
				nextRun.Format(time.RFC3339))
		} else {
			s.log.Infof("  %s (every %s): never run, will run immediately", key, FormatInterval(interval))
		}
	}
}

// logNextRun logs when the next run will occur
func (s *Scheduler) logNextRun() {
	var nextRuns []struct {
		job  string
		time time.Time
	}

	for _, key := range s.jobKeys {
		nextRun := s.stateManager.GetNextRunTime(key, s.intervals[key])
		nextRuns = append(nextRuns, struct {
			job  string
			time time.Time
		}{key, nextRun})
	}

	sort.Slice(nextRuns, func(i, j int) bool {
		return nextRuns[i].time.Before(nextRuns[j].time)
	})

	if len(nextRuns) > 0 {
		next := nextRuns[0]
		until := time.Until(next.time)
		if until < 0 {
			until = 0
		}
		s.log.Infof("Next run: %s in %v (at %s)", next.job, until.Round(time.Second), next.time.Format("15:04:05"))
	}
}

// GetStatus returns the current status of all watched jobs
func (s *Scheduler) GetStatus() map[string]JobStatus {
	status := make(map[string]JobStatus)

	for _, key := range s.jobKeys {
		state, exists := s.stateManager.GetJobState(key)
		status[key] = JobStatus{
			JobKey:      key,
			Interval:    s.intervals[key],
			LastRun:     state,
			NextRunTime: s.stateManager.GetNextRunTime(key, s.intervals[key]),
			NeverRun:    !exists,
		}
	}

	return status
}

// JobStatus contains the status of a watched job
type JobStatus struct {
	JobKey      string
	Interval    time.Duration
	LastRun     JobState
	NextRunTime time.Time
	NeverRun    bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Day suffix, optionally followed by a standard duration
	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
