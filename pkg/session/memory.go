package session

import (
	"sync"
	"time"

	"github.com/Sriram-PR/field-scraper/pkg/models"
)

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.Session)}
}

// Create implements Store
func (m *MemoryStore) Create(s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[s.ID]; ok {
		if err := createOver(*existing); err != nil {
			return err
		}
	}
	stored := s.Clone()
	m.sessions[s.ID] = &stored
	return nil
}

// update runs fn against the stored session under the write lock
func (m *MemoryStore) update(id string, fn func(s *models.Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return notFound(id)
	}
	return fn(s)
}

// SetStatus implements Store
func (m *MemoryStore) SetStatus(id string, status models.SessionStatus, endedAt *time.Time) error {
	return m.update(id, func(s *models.Session) error {
		return applyStatus(s, status, endedAt)
	})
}

// SetProgress implements Store
func (m *MemoryStore) SetProgress(id string, p models.Progress) error {
	return m.update(id, func(s *models.Session) error {
		s.Progress = p
		return nil
	})
}

// SetResults implements Store
func (m *MemoryStore) SetResults(id string, records []models.Record) error {
	return m.update(id, func(s *models.Session) error {
		s.Results = copyRecords(records)
		return nil
	})
}

// AppendError implements Store
func (m *MemoryStore) AppendError(id string, message string) error {
	return m.update(id, func(s *models.Session) error {
		s.Errors = append(s.Errors, message)
		return nil
	})
}

// Get implements Reader
func (m *MemoryStore) Get(id string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, notFound(id)
	}
	return s.Clone(), nil
}

// List implements Reader
func (m *MemoryStore) List() ([]models.Session, error) {
	m.mu.RLock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()
	sortSessions(out)
	return out, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
