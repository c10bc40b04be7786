// Package throttle implements the per-actor request quota: a sliding window of
// request timestamps plus a fixed cooldown entered either when the window is
// exhausted or when the upstream reports overload.
package throttle

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Config is fixed for the lifetime of a Throttle.
type Config struct {
	MaxRequests int
	Window      time.Duration
	Cooldown    time.Duration
}

// DefaultConfig is the interactive client quota: 3 requests per minute,
// 60 s cooldown.
var DefaultConfig = Config{MaxRequests: 3, Window: time.Minute, Cooldown: time.Minute}

func (c Config) validate() error {
	if c.MaxRequests <= 0 {
		return errors.New("throttle: max requests must be positive")
	}
	if c.Window <= 0 {
		return errors.New("throttle: window must be positive")
	}
	if c.Cooldown <= 0 {
		return errors.New("throttle: cooldown must be positive")
	}
	return nil
}

// State is the observable throttle state.
type State struct {
	Throttled         bool
	RemainingSeconds  int
	RemainingRequests int
	CooldownEndsAt    time.Time
}

// Option customises a Throttle.
type Option func(*Throttle)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// WithTickInterval changes the countdown tick used by Run.
func WithTickInterval(d time.Duration) Option {
	return func(t *Throttle) {
		if d > 0 {
			t.tick = d
		}
	}
}

// Throttle is safe for concurrent use.
type Throttle struct {
	cfg  Config
	now  func() time.Time
	tick time.Duration

	mu             sync.Mutex
	timestamps     []time.Time
	throttled      bool
	cooldownEndsAt time.Time
}

// New returns a Throttle with an empty history.
func New(cfg Config, opts ...Option) (*Throttle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	t := &Throttle{cfg: cfg, now: time.Now, tick: time.Second}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Config returns the configuration the throttle was built with.
func (t *Throttle) Config() Config { return t.cfg }

// TryAcquire admits one request if the quota allows it. A refused request that
// finds the window full starts the cooldown.
func (t *Throttle) TryAcquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.expireLocked(now)
	if t.throttled {
		return false
	}
	t.pruneLocked(now)
	if len(t.timestamps) >= t.cfg.MaxRequests {
		t.armLocked(now)
		return false
	}
	t.timestamps = append(t.timestamps, now)
	return true
}

// NotifyOverload forces a full cooldown measured from now. Calling it while
// already throttled re-arms the cooldown rather than extending it.
func (t *Throttle) NotifyOverload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armLocked(t.now())
}

// Throttled reports whether requests are currently refused.
func (t *Throttle) Throttled() bool {
	return t.State().Throttled
}

// RemainingCooldownSeconds is the whole seconds left in the cooldown, 0 when
// not throttled.
func (t *Throttle) RemainingCooldownSeconds() int {
	return t.State().RemainingSeconds
}

// State snapshots the throttle, expiring a finished cooldown first.
func (t *Throttle) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.expireLocked(now)
	return t.stateLocked(now)
}

// Reset clears all history, as when the owning session ends.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// Run ticks once per interval until ctx is done, expiring the cooldown when it
// elapses and reporting the state to onTick while throttled and once more on
// the tick that clears it. onTick may be nil.
func (t *Throttle) Run(ctx context.Context, onTick func(State)) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	wasThrottled := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := t.State()
			if onTick != nil && (st.Throttled || wasThrottled) {
				onTick(st)
			}
			wasThrottled = st.Throttled
		}
	}
}

func (t *Throttle) armLocked(now time.Time) {
	t.throttled = true
	t.cooldownEndsAt = now.Add(t.cfg.Cooldown)
}

// expireLocked ends an elapsed cooldown. History is cleared entirely so the
// actor gets a full fresh quota.
func (t *Throttle) expireLocked(now time.Time) {
	if t.throttled && !now.Before(t.cooldownEndsAt) {
		t.resetLocked()
	}
}

func (t *Throttle) resetLocked() {
	t.throttled = false
	t.timestamps = t.timestamps[:0]
	t.cooldownEndsAt = time.Time{}
}

func (t *Throttle) pruneLocked(now time.Time) {
	i := 0
	for i < len(t.timestamps) && now.Sub(t.timestamps[i]) >= t.cfg.Window {
		i++
	}
	if i > 0 {
		t.timestamps = append(t.timestamps[:0], t.timestamps[i:]...)
	}
}

func (t *Throttle) stateLocked(now time.Time) State {
	if t.throttled {
		left := t.cooldownEndsAt.Sub(now)
		return State{
			Throttled:        true,
			RemainingSeconds: int((left + time.Second - 1) / time.Second),
			CooldownEndsAt:   t.cooldownEndsAt,
		}
	}
	used := 0
	for _, ts := range t.timestamps {
		if now.Sub(ts) < t.cfg.Window {
			used++
		}
	}
	return State{RemainingRequests: t.cfg.MaxRequests - used}
}
