package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// gate is the permit set for one host. users counts holders and waiters.
type gate struct {
	permits   *semaphore.Weighted
	users     int64
	idleSince time.Time
}

// HostGates caps in-flight page fetches per host. One instance is shared by every
// session of a runtime, so concurrent crawls of the same shop queue behind each other.
type HostGates struct {
	mu      sync.Mutex
	gates   map[string]*gate
	perHost int64
	log     *logrus.Entry
}

// NewHostGates allows perHost concurrent fetches to each host. Values below one mean one.
func NewHostGates(perHost int, log *logrus.Entry) *HostGates {
	if perHost < 1 {
		perHost = 1
	}
	return &HostGates{
		gates:   make(map[string]*gate),
		perHost: int64(perHost),
		log:     log.WithField("component", "host_gates"),
	}
}

func (h *HostGates) join(host string) *gate {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.gates[host]
	if !ok {
		g = &gate{permits: semaphore.NewWeighted(h.perHost)}
		h.gates[host] = g
		h.log.WithField("host", host).Debug("Opened host gate")
	}
	g.users++
	return g
}

func (h *HostGates) leave(g *gate) {
	h.mu.Lock()
	g.users--
	if g.users == 0 {
		g.idleSince = time.Now()
	}
	h.mu.Unlock()
}

// Enter blocks until a fetch slot for host is free or ctx ends, which is how a stopped
// session abandons a queued page. The returned func gives the slot back; extra calls are no-ops.
func (h *HostGates) Enter(ctx context.Context, host string) (leave func(), err error) {
	g := h.join(host)
	if err := g.permits.Acquire(ctx, 1); err != nil {
		h.leave(g)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.permits.Release(1)
			h.leave(g)
		})
	}, nil
}

// Prune drops gates for hosts nobody has used in every tick of interval, until ctx ends.
func (h *HostGates) Prune(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.dropIdle(time.Now().Add(-interval))
		}
	}
}

// dropIdle forgets gates idle since before cutoff.
func (h *HostGates) dropIdle(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for host, g := range h.gates {
		if g.users == 0 && !g.idleSince.After(cutoff) {
			delete(h.gates, host)
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Debugf("Dropped %d idle host gates, %d open", dropped, len(h.gates))
	}
	return dropped
}

// Open reports how many hosts currently have a gate.
func (h *HostGates) Open() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.gates)
}
