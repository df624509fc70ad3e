package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sriram-PR/field-scraper/pkg/models"
)

const stateFileName = "watch_state.json"

// JobState contains the last run information for a job
type JobState struct {
	LastRunTime      time.Time            `json:"last_run_time"`
	LastStatus       models.SessionStatus `json:"last_status,omitempty"`
	LastSessionID    string               `json:"last_session_id,omitempty"`
	RecordsExtracted int                  `json:"records_extracted"`
	ErrorMessage     string               `json:"error_message,omitempty"`
}

// Succeeded reports whether the last run completed
func (s JobState) Succeeded() bool {
	return s.LastStatus == models.SessionStatusCompleted && s.ErrorMessage == ""
}

// WatchState contains the persistent state for the watch scheduler
type WatchState struct {
	Jobs      map[string]JobState `json:"jobs"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Jobs: make(map[string]JobState),
		},
	}
}

// Load loads the state from disk. A missing file means a fresh start.
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{
				Jobs: make(map[string]JobState),
			}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	if m.state.Jobs == nil {
		m.state.Jobs = make(map[string]JobState)
	}

	return nil
}

// Save writes the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()

	if err := os.MkdirAll(m.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write-then-rename so a crash never leaves a truncated file
	tmpPath := m.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, m.statePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

// GetJobState returns the state for a specific job
func (m *StateManager) GetJobState(jobKey string) (JobState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Jobs[jobKey]
	return state, ok
}

// UpdateJobState records a finished run, stamping LastRunTime with the current time
func (m *StateManager) UpdateJobState(jobKey string, state JobState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state.LastRunTime = time.Now()
	m.state.Jobs[jobKey] = state
}

// ShouldRun checks if a job is due based on the interval
func (m *StateManager) ShouldRun(jobKey string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Jobs[jobKey]
	if !ok {
		return true
	}
	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the job should next run
func (m *StateManager) GetNextRunTime(jobKey string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Jobs[jobKey]
	if !ok {
		return time.Now()
	}

	return state.LastRunTime.Add(interval)
}

// GetAllJobStates returns a copy of all job states
func (m *StateManager) GetAllJobStates() map[string]JobState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]JobState, len(m.state.Jobs))
	for k, v := range m.state.Jobs {
		result[k] = v
	}
	return result
}
