// Package session tracks crawl runs: the store contract the engine pushes snapshots to,
// memory and Badger implementations, the registry of active runs, and the per-run reporter.
package session

import (
	"fmt"
	"sort"
	"time"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Store receives session snapshots from the engine. These are the only mutation points the engine uses.
type Store interface {
	// Create registers a new session. An existing non-terminal session with the same id is an error.
	Create(s models.Session) error

	// SetStatus transitions a session. Terminal sessions reject every transition with ErrSessionTerminal.
	// endedAt is recorded when non-nil.
	SetStatus(id string, status models.SessionStatus, endedAt *time.Time) error

	// SetProgress replaces the session's progress snapshot
	SetProgress(id string, p models.Progress) error

	// SetResults replaces the session's accumulated records
	SetResults(id string, records []models.Record) error

	// AppendError adds a message to the session's append-only error log
	AppendError(id string, message string) error
}

// Reader observes sessions; returned values never alias store state
type Reader interface {
	Get(id string) (models.Session, error)
	List() ([]models.Session, error)
}

// ReadWriteStore combines both sides plus lifecycle for components that own the store
type ReadWriteStore interface {
	Store
	Reader
	Close() error
}

// createOver checks whether a new session may replace existing
func createOver(existing models.Session) error {
	if !existing.Status.IsTerminal() {
		return fmt.Errorf("%w: session '%s' is %s", utils.ErrSessionActive, existing.ID, existing.Status)
	}
	return nil
}

// applyStatus performs a status transition on s in place
func applyStatus(s *models.Session, status models.SessionStatus, endedAt *time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: unknown session status '%s'", utils.ErrValidation, status)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: session '%s' is %s", utils.ErrSessionTerminal, s.ID, s.Status)
	}
	s.Status = status
	if endedAt != nil {
		t := *endedAt
		s.EndedAt = &t
	}
	return nil
}

// copyRecords copies the slice and each record map so the caller may keep appending
func copyRecords(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// sortSessions orders sessions by start time, then id
func sortSessions(sessions []models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.Before(sessions[j].StartedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

func notFound(id string) error {
	return fmt.Errorf("%w: '%s'", utils.ErrSessionNotFound, id)
}
