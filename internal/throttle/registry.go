package throttle

import (
	"sync"
	"time"
)

// Registry hands out one Throttle per actor, created on first use.
type Registry struct {
	cfg  Config
	opts []Option

	mu     sync.Mutex
	actors map[string]*Throttle
}

// NewRegistry validates cfg once; every actor shares it.
func NewRegistry(cfg Config, opts ...Option) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Registry{cfg: cfg, opts: opts, actors: make(map[string]*Throttle)}, nil
}

// For returns the actor's throttle.
func (r *Registry) For(actor string) *Throttle {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.actors[actor]
	if !ok {
		// cfg was validated by NewRegistry.
		t, _ = New(r.cfg, r.opts...)
		r.actors[actor] = t
	}
	return t
}

// Forget drops the actor's state.
func (r *Registry) Forget(actor string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actors, actor)
}

// Len is the number of tracked actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Sweep forgets actors that are neither throttled nor have requests inside the
// window. It returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for actor, t := range r.actors {
		if t.idle() {
			delete(r.actors, actor)
			n++
		}
	}
	return n
}

func (t *Throttle) idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.expireLocked(now)
	if t.throttled {
		return false
	}
	t.pruneLocked(now)
	return len(t.timestamps) == 0
}

// SweepEvery runs Sweep on an interval until stop is closed.
func (r *Registry) SweepEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
