package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Sriram-PR/field-scraper/pkg/models"
	"github.com/Sriram-PR/field-scraper/pkg/utils"
)

// Run is the registry's handle on one crawl run: a cooperative stop token,
// a done channel, and the final snapshot once the run finishes.
type Run struct {
	ID string

	stop atomic.Bool
	done chan struct{}

	mu    sync.Mutex
	final models.Session
}

// StopRequested reports whether Stop was called. The run checks it at iteration boundaries.
func (r *Run) StopRequested() bool {
	return r.stop.Load()
}

// Done is closed when the run has finished and its final snapshot is available
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Result returns the final snapshot; ok is false while the run is still active
func (r *Run) Result() (s models.Session, ok bool) {
	select {
	case <-r.done:
	default:
		return models.Session{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final.Clone(), true
}

// Wait blocks until the run finishes or ctx ends
func (r *Run) Wait(ctx context.Context) (models.Session, error) {
	select {
	case <-r.done:
		s, _ := r.Result()
		return s, nil
	case <-ctx.Done():
		return models.Session{}, ctx.Err()
	}
}

// Registry maps session ids to runs. It replaces any process-wide table of active runs.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.New().String()
}

// Register creates a run for id. An id whose previous run is still active is rejected with ErrSessionActive.
func (g *Registry) Register(id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty session id", utils.ErrValidation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.runs[id]; ok && !isDone(existing) {
		return nil, fmt.Errorf("%w: '%s'", utils.ErrSessionActive, id)
	}
	run := &Run{ID: id, done: make(chan struct{})}
	g.runs[id] = run
	return run, nil
}

// Get returns the run registered for id, active or finished
func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	run, ok := g.runs[id]
	return run, ok
}

// Stop sets the run's stop token. It reports false when the run already finished
// or stop was already requested.
func (g *Registry) Stop(id string) (bool, error) {
	run, ok := g.Get(id)
	if !ok {
		return false, fmt.Errorf("%w: '%s'", utils.ErrSessionNotFound, id)
	}
	if isDone(run) {
		return false, nil
	}
	return run.stop.CompareAndSwap(false, true), nil
}

// Finish records the final snapshot and closes the run's done channel. Later calls are ignored.
func (g *Registry) Finish(run *Run, final models.Session) {
	run.mu.Lock()
	defer run.mu.Unlock()
	if isDone(run) {
		return
	}
	run.final = final.Clone()
	close(run.done)
}

// Active returns the ids of runs that have not finished, sorted
func (g *Registry) Active() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for id, run := range g.runs {
		if !isDone(run) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Forget drops finished runs from the registry and returns how many were removed
func (g *Registry) Forget() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, run := range g.runs {
		if isDone(run) {
			delete(g.runs, id)
			removed++
		}
	}
	return removed
}

func isDone(run *Run) bool {
	select {
	case <-run.done:
		return true
	default:
		return false
	}
}
