// Package scheduler tears sessions down and recreates them: on demand for a
// single id, and periodically for the whole pool with staggered offsets.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"vawter.tech/stopper"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/fault"
	"github.com/vietddude/botkeeper/internal/core/registry"
	"github.com/vietddude/botkeeper/internal/core/session"
	"github.com/vietddude/botkeeper/internal/metrics"
)

var (
	// ErrNotFound is returned when the id is not registered
	ErrNotFound = errors.New("session not found")

	// ErrPending is returned when a reconnect for the id is already in its delay window
	ErrPending = errors.New("reconnect already pending")

	// ErrCanceled is delivered to a waiting caller when the session was deleted
	// before its recreate ran
	ErrCanceled = errors.New("reconnect canceled by delete")

	// ErrStopped is delivered when the scheduler stopped before the recreate ran
	ErrStopped = errors.New("scheduler stopped")
)

// Trigger labels why a reconnect happened.
const (
	TriggerManual = "manual"
	TriggerSweep  = "sweep"
)

// Config holds the reconnect timings.
type Config struct {
	RecreateDelay time.Duration `yaml:"recreate_delay"`
	Stagger       time.Duration `yaml:"stagger"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		RecreateDelay: 2 * time.Second,
		Stagger:       5 * time.Second,
		SweepInterval: 10 * time.Minute,
	}
}

// Validate checks that one sweep never runs two recreates at once.
func (c Config) Validate() error {
	if c.RecreateDelay <= 0 || c.Stagger <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("scheduler timings must be positive: %+v", c)
	}
	if c.Stagger <= c.RecreateDelay {
		return fmt.Errorf("stagger (%s) must exceed recreate delay (%s)", c.Stagger, c.RecreateDelay)
	}
	return nil
}

// Recreator builds a replacement session into a reserved registry slot.
type Recreator interface {
	Recreate(ctx context.Context, id string, params domain.Params) (*session.Handle, error)
}

// Result is the outcome of one reconnect.
type Result struct {
	Handle *session.Handle
	Err    error
}

type pendingReconnect struct {
	timer   clockwork.Timer
	done    chan Result
	trigger string
}

// Scheduler owns every teardown/recreate. Lock order: Scheduler.mu, then the
// registry's own lock.
type Scheduler struct {
	cfg       Config
	clock     clockwork.Clock
	registry  *registry.Registry
	recreator Recreator
	log       *slog.Logger

	mu          sync.Mutex
	pending     map[string]*pendingReconnect
	sweepTimers []clockwork.Timer
	stopped     bool
	sctx        *stopper.Context
}

// New creates a Scheduler. Use clockwork.NewRealClock() outside tests.
func New(cfg Config, clock clockwork.Clock, reg *registry.Registry, recreator Recreator) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		clock:     clock,
		registry:  reg,
		recreator: recreator,
		log:       slog.Default().With("component", "scheduler"),
		pending:   make(map[string]*pendingReconnect),
	}
}

// Reconnect tears the session down now and recreates it with the same id and
// parameters after the recreate delay. The returned channel receives exactly
// one Result.
func (s *Scheduler) Reconnect(id string) (<-chan Result, error) {
	return s.reconnect(id, TriggerManual)
}

func (s *Scheduler) reconnect(id, trigger string) (<-chan Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if _, ok := s.pending[id]; ok {
		return nil, ErrPending
	}

	// Detach first so lookups during the delay window report not-found.
	h, ok := s.registry.Reserve(id)
	if !ok {
		return nil, ErrNotFound
	}

	p := &pendingReconnect{done: make(chan Result, 1), trigger: trigger}
	p.timer = s.clock.AfterFunc(s.cfg.RecreateDelay, func() {
		defer fault.Guard()
		s.recreate(id, h.Params, p)
	})
	s.pending[id] = p

	if err := h.Teardown(); err != nil {
		s.log.Debug("Teardown error ignored", "id", id, "error", err)
	}
	s.log.Info("Ending connection, recreating after delay", "id", id, "trigger", trigger, "delay", s.cfg.RecreateDelay)
	return p.done, nil
}

func (s *Scheduler) recreate(id string, params domain.Params, p *pendingReconnect) {
	s.mu.Lock()
	if s.pending[id] != p {
		// Canceled by Delete or Stop.
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	h, err := s.recreator.Recreate(context.Background(), id, params)
	if err != nil {
		s.registry.Release(id)
	}
	s.mu.Unlock()

	if err != nil {
		metrics.Reconnects.WithLabelValues(p.trigger, "failure").Inc()
		s.log.Error("Reconnect failed", "id", id, "error", err)
	} else {
		metrics.Reconnects.WithLabelValues(p.trigger, "success").Inc()
		s.log.Info("Reconnect attempt initiated", "id", id)
	}
	p.done <- Result{Handle: h, Err: err}
}

// Delete removes id from the pool. A live session is torn down; a session in
// its recreate window has the recreate canceled so it is never resurrected.
// Returns false when id is unknown.
func (s *Scheduler) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
		delete(s.pending, id)
		s.registry.Release(id)
		p.done <- Result{Err: ErrCanceled}
		return true
	}

	h, ok := s.registry.Remove(id)
	if !ok {
		return false
	}
	if err := h.Teardown(); err != nil {
		s.log.Debug("Teardown error ignored", "id", id, "error", err)
	}
	return true
}

// Pending reports whether id is inside its recreate window.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

// Sweep schedules a reconnect for every registered id, Stagger apart, in
// registry order. Ids that vanish or are already pending when their turn
// comes are skipped. Unfired turns of an earlier sweep are canceled.
// Returns the number of ids scheduled.
func (s *Scheduler) Sweep() int {
	ids := s.registry.IDs()
	metrics.Sweeps.Inc()

	if len(ids) == 0 {
		s.log.Info("[AutoReconnect] No active sessions to reconnect")
		return 0
	}
	s.log.Info("[AutoReconnect] Starting reconnect sweep", "count", len(ids), "stagger", s.cfg.Stagger)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}

	// A new sweep supersedes turns of the previous one that have not fired.
	for _, t := range s.sweepTimers {
		t.Stop()
	}
	s.sweepTimers = s.sweepTimers[:0]
	for i, id := range ids {
		t := s.clock.AfterFunc(time.Duration(i)*s.cfg.Stagger, func() {
			defer fault.Guard()
			s.sweepOne(id)
		})
		s.sweepTimers = append(s.sweepTimers, t)
	}
	return len(ids)
}

func (s *Scheduler) sweepOne(id string) {
	_, err := s.reconnect(id, TriggerSweep)
	switch {
	case errors.Is(err, ErrNotFound):
		s.log.Info("[AutoReconnect] Session not found during sweep, skipping", "id", id)
	case errors.Is(err, ErrPending):
		s.log.Info("[AutoReconnect] Reconnect already pending, skipping", "id", id)
	case err != nil:
		s.log.Warn("[AutoReconnect] Reconnect not scheduled", "id", id, "error", err)
	}
}

// Start runs the periodic sweep until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.sctx = stopper.WithContext(ctx)
	sctx := s.sctx
	s.mu.Unlock()

	s.log.Info("[AutoReconnect] Auto-reconnect enabled", "interval", s.cfg.SweepInterval)

	sctx.Go(func(sctx *stopper.Context) error {
		ticker := s.clock.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-sctx.Stopping():
				return nil
			case <-ticker.Chan():
				s.Sweep()
			}
		}
	})
}

// Stop halts the sweep loop and cancels every scheduled timer. Reservations
// of pending recreates stay in the registry so their parameters remain in
// the snapshot and come back on the next start.
func (s *Scheduler) Stop(grace time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	for _, t := range s.sweepTimers {
		t.Stop()
	}
	s.sweepTimers = nil
	for id, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, id)
		p.done <- Result{Err: ErrStopped}
	}
	sctx := s.sctx
	s.mu.Unlock()

	if sctx == nil {
		return nil
	}
	sctx.Stop(grace)
	return sctx.Wait()
}
