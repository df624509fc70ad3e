package session

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Reporter pushes one run's snapshots to a Store. Store failures are logged and never end the run.
type Reporter struct {
	store Store
	id    string
	log   *logrus.Entry
}

// NewReporter creates a Reporter for session id
func NewReporter(store Store, id string, log *logrus.Entry) *Reporter {
	return &Reporter{store: store, id: id, log: log}
}

// Begin creates the session in the store with status running
func (r *Reporter) Begin(jobKey, targetURL string) error {
	return r.store.Create(models.Session{
		ID:        r.id,
		JobKey:    jobKey,
		TargetURL: targetURL,
		Status:    models.SessionStatusRunning,
		StartedAt: time.Now(),
		Results:   []models.Record{},
		Errors:    []string{},
	})
}

// Push replaces the stored results and progress
func (r *Reporter) Push(records []models.Record, p models.Progress) {
	if err := r.store.SetResults(r.id, records); err != nil {
		r.log.Warnf("Failed to push results: %v", err)
	}
	if err := r.store.SetProgress(r.id, p); err != nil {
		r.log.Warnf("Failed to push progress: %v", err)
	}
}

// Error appends message to the session error log and logs it
func (r *Reporter) Error(message string) {
	r.log.Warn(message)
	if err := r.store.AppendError(r.id, message); err != nil {
		r.log.Warnf("Failed to append session error: %v", err)
	}
}

// Finish moves the session to a terminal status stamped now. It reports false when the
// session was already terminal, as happens after Stop.
func (r *Reporter) Finish(status models.SessionStatus) bool {
	now := time.Now()
	err := r.store.SetStatus(r.id, status, &now)
	if errors.Is(err, utils.ErrSessionTerminal) {
		r.log.Debugf("Session already terminal, keeping its status: %v", err)
		return false
	}
	if err != nil {
		r.log.Errorf("Failed to set final status %s: %v", status, err)
		return false
	}
	return true
}

// Snapshot reads the session back when the store is also a Reader
func (r *Reporter) Snapshot() (models.Session, bool) {
	reader, ok := r.store.(Reader)
	if !ok {
		return models.Session{}, false
	}
	s, err := reader.Get(r.id)
	if err != nil {
		r.log.Warnf("Failed to read session snapshot: %v", err)
		return models.Session{}, false
	}
	return s, true
}
