package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

func TestRegistry_RegisterAndFinish(t *testing.T) {
	g := NewRegistry()
	run, err := g.Register("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, g.Active())

	_, err = g.Register("s1")
	assert.ErrorIs(t, err, utils.ErrSessionActive)

	_, ok := run.Result()
	assert.False(t, ok)

	g.Finish(run, models.Session{ID: "s1", Status: models.SessionStatusCompleted})
	g.Finish(run, models.Session{ID: "s1", Status: models.SessionStatusFailed})

	final, ok := run.Result()
	require.True(t, ok)
	assert.Equal(t, models.SessionStatusCompleted, final.Status)
	assert.Empty(t, g.Active())

	again, err := g.Register("s1")
	require.NoError(t, err)
	assert.NotSame(t, run, again)
}

func TestRegistry_RegisterEmptyID(t *testing.T) {
	_, err := NewRegistry().Register("")
	assert.ErrorIs(t, err, utils.ErrValidation)
}

func TestRegistry_Stop(t *testing.T) {
	g := NewRegistry()

	_, err := g.Stop("missing")
	assert.ErrorIs(t, err, utils.ErrSessionNotFound)

	run, err := g.Register("s1")
	require.NoError(t, err)
	assert.False(t, run.StopRequested())

	stopped, err := g.Stop("s1")
	require.NoError(t, err)
	assert.True(t, stopped)
	assert.True(t, run.StopRequested())

	stopped, err = g.Stop("s1")
	require.NoError(t, err)
	assert.False(t, stopped, "second stop is a no-op")

	g.Finish(run, models.Session{ID: "s1"})
	other, err := g.Register("s2")
	require.NoError(t, err)
	g.Finish(other, models.Session{ID: "s2"})
	stopped, err = g.Stop("s2")
	require.NoError(t, err)
	assert.False(t, stopped, "finished runs cannot be stopped")
}

func TestRun_Wait(t *testing.T) {
	g := NewRegistry()
	run, err := g.Register("s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = run.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.Finish(run, models.Session{ID: "s1", Status: models.SessionStatusStopped})
	}()

	final, err := run.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusStopped, final.Status)
	wg.Wait()
	<-run.Done()
}

func TestRegistry_Forget(t *testing.T) {
	g := NewRegistry()
	done, _ := g.Register("done")
	_, _ = g.Register("active")
	g.Finish(done, models.Session{ID: "done"})

	assert.Equal(t, 1, g.Forget())
	_, ok := g.Get("done")
	assert.False(t, ok)
	_, ok = g.Get("active")
	assert.True(t, ok)
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
