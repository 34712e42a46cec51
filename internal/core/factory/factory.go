// Package factory turns connection parameters into registered session handles
// and relays each session's lifecycle events into its handle.
package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/botkeeper/internal/core/classify"
	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/fault"
	"github.com/vietddude/botkeeper/internal/core/registry"
	"github.com/vietddude/botkeeper/internal/core/session"
	"github.com/vietddude/botkeeper/internal/metrics"
)

// Dialer constructs the underlying game session. Dial must not block on the
// network: connection failures are reported as events, and an error return
// means the parameters were rejected.
type Dialer interface {
	Dial(ctx context.Context, params domain.Params) (session.Conn, error)
}

// CreationError is returned when a session could not be constructed. The
// registry is left unchanged.
type CreationError struct {
	ID  string
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create session %s: %v", e.ID, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// Factory creates sessions and registers them.
type Factory struct {
	dialer   Dialer
	registry *registry.Registry
	observer session.Observer
	log      *slog.Logger
}

// New creates a Factory. observer may be nil.
func New(dialer Dialer, reg *registry.Registry, observer session.Observer) *Factory {
	return &Factory{
		dialer:   dialer,
		registry: reg,
		observer: observer,
		log:      slog.Default().With("component", "factory"),
	}
}

// Create constructs a session under a new id and inserts it into the registry.
func (f *Factory) Create(ctx context.Context, id string, params domain.Params) (*session.Handle, error) {
	return f.create(ctx, id, params, f.registry.Insert)
}

// Recreate constructs a session for an id reserved by a reconnect.
func (f *Factory) Recreate(ctx context.Context, id string, params domain.Params) (*session.Handle, error) {
	return f.create(ctx, id, params, f.registry.Fill)
}

func (f *Factory) create(
	ctx context.Context,
	id string,
	params domain.Params,
	register func(*session.Handle) error,
) (*session.Handle, error) {
	if err := params.Validate(); err != nil {
		return nil, &CreationError{ID: id, Err: err}
	}

	conn, err := f.dialer.Dial(ctx, params)
	if err != nil {
		f.log.Error("Failed to create session", "id", id, "error", err)
		return nil, &CreationError{ID: id, Err: err}
	}

	h := session.NewHandle(id, params, conn, f.observer)
	if err := register(h); err != nil {
		_ = conn.Close()
		return nil, &CreationError{ID: id, Err: err}
	}

	events := conn.Events()
	fault.Go(func() { f.pump(h, events) })
	return h, nil
}

// pump is the sole consumer of a session's event stream.
func (f *Factory) pump(h *session.Handle, events <-chan domain.Event) {
	log := f.log.With("id", h.ID)
	for ev := range events {
		metrics.SessionEvents.WithLabelValues(string(ev.Type)).Inc()
		Apply(log, h, ev)
	}
}

// Apply routes one event through the classifier into the handle.
func Apply(log *slog.Logger, h *session.Handle, ev domain.Event) {
	switch ev.Type {
	case domain.EventTypeSpawn:
		if h.MarkOnline() {
			log.Info(fmt.Sprintf("%s successfully connected to %s", h.Params.Identity, h.Params.Addr()))
		}

	case domain.EventTypeEnd:
		if ev.Reason != domain.EndReasonSocketClosed {
			log.Info("Connection ended", "reason", ev.Reason)
		}
		h.MarkEnded(ev.Reason)

	case domain.EventTypeKicked:
		log.Info("Kicked", "reason", ev.Reason)
		h.MarkKicked(ev.Reason)

	case domain.EventTypeVitals:
		h.SetVitals(ev.Health, ev.Food)

	case domain.EventTypeError:
		sig := classify.FromError(ev.Err)
		class := classify.Classify(sig)
		metrics.ClassifiedErrors.WithLabelValues("session", class.String()).Inc()

		switch class {
		case classify.Ignorable:
			log.Debug("Ignored protocol noise", "error", sig.Message)
		case classify.Reportable:
			log.Error("Connection Error", "error", sig.Message, "code", sig.Code)
			h.MarkError(sig.Message)
		default:
			log.Warn("Unclassified session error", "error", sig.Message)
		}
	}
}
