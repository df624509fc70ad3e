package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/field-scraper/pkg/log"
	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

const (
	sessionKeyPrefix = "session:"    // Prefix for session keys in DB
	sessionDBDir     = "sessions_db" // Subdirectory name within stateDir for Badger DB files

	// InterruptedMessage is appended to sessions found unfinished when the store is reopened
	InterruptedMessage = "Session interrupted before completion"
)

// BadgerStore persists session snapshots in BadgerDB, one JSON value per session
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the session database under stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, sessionDBDir)
	logger = logger.WithField("component", "session_store")
	logger.Infof("Opening session database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

// read decodes the session stored under key; found is false when the key is absent
func read(txn *badger.Txn, key []byte) (sess models.Session, found bool, err error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sess, false, nil
	}
	if err != nil {
		return sess, false, fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	err = item.Value(func(val []byte) error {
		if errJSON := json.Unmarshal(val, &sess); errJSON != nil {
			return fmt.Errorf("%w: decoding session '%s': %w", utils.ErrParsing, string(key), errJSON)
		}
		return nil
	})
	return sess, err == nil, err
}

func write(txn *badger.Txn, sess models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: encoding session '%s': %w", utils.ErrParsing, sess.ID, err)
	}
	return txn.SetEntry(badger.NewEntry(sessionKey(sess.ID), data))
}

// update applies fn to the stored session in one read-modify-write transaction
func (s *BadgerStore) update(id string, fn func(sess *models.Session) error) error {
	key := sessionKey(id)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		sess, found, err := read(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return notFound(id)
		}
		if err := fn(&sess); err != nil {
			return err
		}
		return write(txn, sess)
	})
	if err != nil && !errors.Is(err, utils.ErrSessionNotFound) && !errors.Is(err, utils.ErrSessionTerminal) {
		s.log.WithField("key", string(key)).Errorf("DB Update error: %v", err)
	}
	return err
}

// Create implements Store
func (s *BadgerStore) Create(sess models.Session) error {
	return s.dbUpdate(func(txn *badger.Txn) error {
		existing, found, err := read(txn, sessionKey(sess.ID))
		if err != nil {
			return err
		}
		if found {
			if err := createOver(existing); err != nil {
				return err
			}
		}
		return write(txn, sess)
	})
}

// SetStatus implements Store
func (s *BadgerStore) SetStatus(id string, status models.SessionStatus, endedAt *time.Time) error {
	return s.update(id, func(sess *models.Session) error {
		return applyStatus(sess, status, endedAt)
	})
}

// SetProgress implements Store
func (s *BadgerStore) SetProgress(id string, p models.Progress) error {
	return s.update(id, func(sess *models.Session) error {
		sess.Progress = p
		return nil
	})
}

// SetResults implements Store
func (s *BadgerStore) SetResults(id string, records []models.Record) error {
	return s.update(id, func(sess *models.Session) error {
		sess.Results = records
		return nil
	})
}

// AppendError implements Store
func (s *BadgerStore) AppendError(id string, message string) error {
	return s.update(id, func(sess *models.Session) error {
		sess.Errors = append(sess.Errors, message)
		return nil
	})
}

// Get implements Reader
func (s *BadgerStore) Get(id string) (models.Session, error) {
	var sess models.Session
	err := s.db.View(func(txn *badger.Txn) error {
		var (
			found bool
			err   error
		)
		sess, found, err = read(txn, sessionKey(id))
		if err != nil {
			return err
		}
		if !found {
			return notFound(id)
		}
		return nil
	})
	return sess, err
}

// List implements Reader. Undecodable entries are logged and skipped.
func (s *BadgerStore) List() ([]models.Session, error) {
	var out []models.Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(sessionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var sess models.Session
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &sess)
			})
			if err != nil {
				s.log.Warnf("Skipping undecodable session entry '%s': %v", string(item.Key()), err)
				continue
			}
			out = append(out, sess)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing sessions: %w", utils.ErrDatabase, err)
	}
	sortSessions(out)
	return out, nil
}

// RecoverInterrupted marks sessions left idle or running by a previous process as failed.
// Returns the number of sessions updated.
func (s *BadgerStore) RecoverInterrupted(ctx context.Context) (int, error) {
	sessions, err := s.List()
	if err != nil {
		return 0, err
	}
	recovered := 0
	now := time.Now()
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if sess.Status.IsTerminal() {
			continue
		}
		err := s.update(sess.ID, func(stored *models.Session) error {
			if err := applyStatus(stored, models.SessionStatusFailed, &now); err != nil {
				return err
			}
			stored.Errors = append(stored.Errors, InterruptedMessage)
			return nil
		})
		if err != nil {
			s.log.Warnf("Could not recover session '%s': %v", sess.ID, err)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.log.Infof("Marked %d interrupted session(s) as failed", recovered)
	}
	return recovered, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx ends
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close cleanly closes the database
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing session DB: %v", err)
			return err
		}
		s.log.Info("Session DB closed.")
	}
	return nil
}
