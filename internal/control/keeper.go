// Package control wires the session pool together and runs it.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/botkeeper/internal/core/config"
	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/factory"
	"github.com/vietddude/botkeeper/internal/core/registry"
	"github.com/vietddude/botkeeper/internal/core/scheduler"
	"github.com/vietddude/botkeeper/internal/core/session"
	"github.com/vietddude/botkeeper/internal/health"
	"github.com/vietddude/botkeeper/internal/infra/mcclient"
	"github.com/vietddude/botkeeper/internal/infra/storage"
	"github.com/vietddude/botkeeper/internal/server"
)

const (
	healthInterval = 15 * time.Second
	stopGrace      = 5 * time.Second
	maxIDAttempts  = 3
)

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	dialer factory.Dialer
	clock  clockwork.Clock
	store  storage.SnapshotStore
}

// WithDialer replaces the game client.
func WithDialer(d factory.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithClock replaces the wall clock used by the scheduler and monitor.
func WithClock(c clockwork.Clock) Option { return func(o *options) { o.clock = c } }

// WithStore replaces the configured snapshot backend.
func WithStore(s storage.SnapshotStore) Option { return func(o *options) { o.store = s } }

// Keeper is the main application struct that owns the pool lifecycle.
type Keeper struct {
	cfg       *config.AppConfig
	backend   *backend
	gate      *gatedPersister
	persister *storage.Persister
	registry  *registry.Registry
	factory   *factory.Factory
	scheduler *scheduler.Scheduler
	hub       *server.Hub
	monitor   *health.Monitor
	http      *server.Server
	grpc      *health.GRPCServer
	log       *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewKeeper creates a Keeper with all dependencies initialized.
func NewKeeper(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Keeper, error) {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = mcclient.NewDialer(cfg.Client)
	}

	// 1. Snapshot storage
	var b *backend
	if o.store != nil {
		b = &backend{name: "custom", store: o.store}
	} else {
		var err error
		if b, err = openBackend(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}

	k := &Keeper{
		cfg:     cfg,
		backend: b,
		hub:     server.NewHub(),
		log:     slog.Default().With("component", "keeper"),
	}

	// 2. Pool core
	k.persister = storage.NewPersister(b.store, b.name)
	k.gate = &gatedPersister{inner: k.persister}
	k.registry = registry.New(k.gate)
	k.factory = factory.New(o.dialer, k.registry, k.observe)
	k.scheduler = scheduler.New(cfg.Scheduler, o.clock, k.registry, k.factory)

	// 3. Surfaces
	k.monitor = health.NewMonitor(k.registry, b.checker, b.name, o.clock)
	k.http = server.NewServer(k, k.monitor, k.hub, cfg.Server.Port)
	if cfg.Server.GRPCPort > 0 {
		k.grpc = health.NewGRPCServer(k.monitor, cfg.Server.GRPCPort)
	}

	return k, nil
}

// observe forwards accepted transitions to WebSocket clients.
func (k *Keeper) observe(id string, params domain.Params, t session.Transition) {
	k.log.Debug("Session transition", "id", id, "from", t.From, "to", t.To, "reason", t.Reason)
	k.hub.Publish(server.MessageTransition, server.TransitionData{
		ID:       id,
		Username: params.Identity,
		From:     string(t.From),
		To:       string(t.To),
		Reason:   t.Reason,
	})
}

// Start rebuilds the pool and starts every background component.
func (k *Keeper) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel

	k.Bootstrap(runCtx)
	k.scheduler.Start(runCtx)
	go k.monitor.Start(runCtx, healthInterval)

	if k.backend.db != nil {
		k.backend.db.StartMetricsCollector(runCtx)
	}

	if k.backend.file != nil && k.cfg.Store.Watch {
		edits, err := k.backend.file.Watch(runCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to watch snapshot: %w", err)
		}
		go k.watch(runCtx, edits)
	}

	group := &errgroup.Group{}
	group.Go(func() error {
		if err := k.http.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if k.grpc != nil {
		group.Go(func() error {
			if err := k.grpc.Start(); err != nil {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	k.group = group

	k.log.Info("Keeper started", "sessions", k.registry.Len(), "port", k.cfg.Server.Port)
	return nil
}

// Wait blocks until the servers exit and returns the first failure.
func (k *Keeper) Wait() error {
	if k.group == nil {
		return nil
	}
	return k.group.Wait()
}

// Stop shuts the pool down. Sessions are torn down but stay in the snapshot.
func (k *Keeper) Stop(ctx context.Context) error {
	k.log.Info("Stopping Keeper...")

	var errs []error
	if err := k.scheduler.Stop(stopGrace); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := k.http.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if k.grpc != nil {
		k.grpc.Stop()
	}
	if k.cancel != nil {
		k.cancel()
	}

	for _, h := range k.registry.List() {
		if err := h.Teardown(); err != nil {
			k.log.Debug("Teardown error ignored", "id", h.ID, "error", err)
		}
	}

	if err := k.backend.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot store: %w", err))
	}
	return errors.Join(errs...)
}

// Sessions lists every live session in insertion order.
func (k *Keeper) Sessions() []session.View {
	handles := k.registry.List()
	views := make([]session.View, 0, len(handles))
	for _, h := range handles {
		views = append(views, h.View())
	}
	return views
}

// Get returns the live session for id.
func (k *Keeper) Get(id string) (session.View, bool) {
	h, ok := k.registry.Get(id)
	if !ok {
		return session.View{}, false
	}
	return h.View(), true
}

// Add creates a session under a freshly generated id.
func (k *Keeper) Add(ctx context.Context, params domain.Params) (string, error) {
	for attempt := 0; ; attempt++ {
		id := k.registry.NewID()
		_, err := k.factory.Create(ctx, id, params)
		if errors.Is(err, registry.ErrDuplicateID) && attempt < maxIDAttempts {
			continue
		}
		if err != nil {
			return "", err
		}
		k.log.Info("Session added", "id", id, "params", params.String())
		return id, nil
	}
}

// Delete removes id from the pool. It returns false when id is unknown.
func (k *Keeper) Delete(id string) bool {
	if !k.scheduler.Delete(id) {
		return false
	}
	k.log.Info("Session deleted", "id", id)
	k.hub.Publish(server.MessageRemoved, map[string]string{"id": id})
	return true
}

// Reconnect tears id down and waits for its replacement to be created.
func (k *Keeper) Reconnect(ctx context.Context, id string) error {
	done, err := k.scheduler.Reconnect(id)
	if err != nil {
		return err
	}
	select {
	case res := <-done:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
