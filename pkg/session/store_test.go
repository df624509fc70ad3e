package session

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newBadger(t *testing.T, dir string) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(dir, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// storeFactories runs each contract test against every implementation
func storeFactories() map[string]func(t *testing.T) ReadWriteStore {
	return map[string]func(t *testing.T) ReadWriteStore{
		"memory": func(t *testing.T) ReadWriteStore { return NewMemoryStore() },
		"badger": func(t *testing.T) ReadWriteStore { return newBadger(t, t.TempDir()) },
	}
}

func running(id string, started time.Time) models.Session {
	return models.Session{ID: id, Status: models.SessionStatusRunning, StartedAt: started}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			require.NoError(t, store.Create(running("s1", time.Now())))

			records := []models.Record{{"title": models.StringPtr("a"), "price": nil}}
			require.NoError(t, store.SetResults("s1", records))
			require.NoError(t, store.SetProgress("s1", models.Progress{Current: 1, Total: 3, Extracted: 1}))
			require.NoError(t, store.AppendError("s1", "Page 2: boom"))
			require.NoError(t, store.AppendError("s1", "Page 3: boom"))

			ended := time.Now()
			require.NoError(t, store.SetStatus("s1", models.SessionStatusCompleted, &ended))

			got, err := store.Get("s1")
			require.NoError(t, err)
			assert.Equal(t, models.SessionStatusCompleted, got.Status)
			require.NotNil(t, got.EndedAt)
			assert.WithinDuration(t, ended, *got.EndedAt, time.Millisecond)
			assert.Equal(t, models.Progress{Current: 1, Total: 3, Extracted: 1}, got.Progress)
			assert.Equal(t, []string{"Page 2: boom", "Page 3: boom"}, got.Errors)
			require.Len(t, got.Results, 1)
			assert.Equal(t, "a", *got.Results[0]["title"])
			assert.Contains(t, got.Results[0], "price")
			assert.Nil(t, got.Results[0]["price"])
		})
	}
}

func TestStore_TerminalIsAbsorbing(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			require.NoError(t, store.Create(running("s1", time.Now())))
			now := time.Now()
			require.NoError(t, store.SetStatus("s1", models.SessionStatusStopped, &now))

			for _, next := range []models.SessionStatus{
				models.SessionStatusRunning, models.SessionStatusCompleted, models.SessionStatusStopped,
			} {
				err := store.SetStatus("s1", next, &now)
				assert.ErrorIs(t, err, utils.ErrSessionTerminal, "transition to %s", next)
			}

			// Results may still be pushed after a stop
			require.NoError(t, store.SetResults("s1", []models.Record{{"a": models.StringPtr("1")}}))
			got, err := store.Get("s1")
			require.NoError(t, err)
			assert.Equal(t, models.SessionStatusStopped, got.Status)
			assert.Len(t, got.Results, 1)
		})
	}
}

func TestStore_Errors(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			_, err := store.Get("missing")
			assert.ErrorIs(t, err, utils.ErrSessionNotFound)
			assert.ErrorIs(t, store.SetProgress("missing", models.Progress{}), utils.ErrSessionNotFound)
			assert.ErrorIs(t, store.AppendError("missing", "x"), utils.ErrSessionNotFound)

			require.NoError(t, store.Create(running("s1", time.Now())))
			assert.ErrorIs(t, store.Create(running("s1", time.Now())), utils.ErrSessionActive)
			assert.ErrorIs(t, store.SetStatus("s1", "paused", nil), utils.ErrValidation)

			// A finished session can be replaced by a new run with the same id
			require.NoError(t, store.SetStatus("s1", models.SessionStatusFailed, nil))
			require.NoError(t, store.Create(running("s1", time.Now())))
			got, err := store.Get("s1")
			require.NoError(t, err)
			assert.Equal(t, models.SessionStatusRunning, got.Status)
		})
	}
}

func TestStore_ListOrdered(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			base := time.Now()
			require.NoError(t, store.Create(running("late", base.Add(time.Minute))))
			require.NoError(t, store.Create(running("early", base)))
			require.NoError(t, store.Create(running("also-early", base)))

			list, err := store.List()
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "also-early", list[0].ID)
			assert.Equal(t, "early", list[1].ID)
			assert.Equal(t, "late", list[2].ID)
		})
	}
}

func TestMemoryStore_ReadersDoNotAlias(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Create(running("s1", time.Now())))

	records := []models.Record{{"a": models.StringPtr("1")}}
	require.NoError(t, store.SetResults("s1", records))
	records[0]["a"] = models.StringPtr("changed")

	got, err := store.Get("s1")
	require.NoError(t, err)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "1", *got.Results[0]["a"])

	got.Errors = append(got.Errors, "reader scribble")
	again, err := store.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, again.Errors)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := NewBadgerStore(dir, testLogger())
	require.NoError(t, err)
	require.NoError(t, first.Create(running("done", time.Now())))
	require.NoError(t, first.SetStatus("done", models.SessionStatusCompleted, nil))
	require.NoError(t, first.Create(running("crashed", time.Now())))
	require.NoError(t, first.SetResults("crashed", []models.Record{{"a": models.StringPtr("kept")}}))
	require.NoError(t, first.Close())

	second := newBadger(t, dir)
	recovered, err := second.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	crashed, err := second.Get("crashed")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusFailed, crashed.Status)
	assert.NotNil(t, crashed.EndedAt)
	assert.Equal(t, []string{InterruptedMessage}, crashed.Errors)
	require.Len(t, crashed.Results, 1)
	assert.Equal(t, "kept", *crashed.Results[0]["a"])

	done, err := second.Get("done")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, done.Status)
}

func TestBadgerStore_RunGCStopsOnCancel(t *testing.T) {
	store := newBadger(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		store.RunGC(ctx, time.Millisecond)
		close(finished)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not return after cancellation")
	}
}
