package mcp

import (
	"sort"
	"sync"

	"github.com/Sriram-PR/field-scraper/pkg/session"
)

// JobTracker remembers the latest run started for each configured job key,
// so a job is never started twice at the same time
type JobTracker struct {
	runs map[string]*session.Run
	mu   sync.Mutex
}

// NewJobTracker creates an empty tracker
func NewJobTracker() *JobTracker {
	return &JobTracker{runs: make(map[string]*session.Run)}
}

// StartIfIdle calls start unless the job's previous run is still active.
// It returns the active or newly started run and whether start was called.
func (t *JobTracker) StartIfIdle(jobKey string, start func() (*session.Run, error)) (*session.Run, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if run, ok := t.runs[jobKey]; ok && !finished(run) {
		return run, false, nil
	}
	run, err := start()
	if err != nil {
		return nil, false, err
	}
	t.runs[jobKey] = run
	return run, true, nil
}

// Latest returns the most recent run for a job key
func (t *JobTracker) Latest(jobKey string) (*session.Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[jobKey]
	return run, ok
}

// IsRunning reports whether the job's latest run is still active
func (t *JobTracker) IsRunning(jobKey string) bool {
	run, ok := t.Latest(jobKey)
	return ok && !finished(run)
}

// Running returns the job keys with an active run, sorted
func (t *JobTracker) Running() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var keys []string
	for key, run := range t.runs {
		if !finished(run) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func finished(run *session.Run) bool {
	select {
	case <-run.Done():
		return true
	default:
		return false
	}
}
