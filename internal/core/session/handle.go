// Package session holds the in-memory record of one managed connection and
// the state machine that drives its status.
package session

import (
	"sync"

	"github.com/vietddude/botkeeper/internal/core/domain"
)

// Conn is the underlying game session. Events is a lazy, non-restartable
// stream that is closed when the session is gone.
type Conn interface {
	Events() <-chan domain.Event
	Close() error
}

// Observer is notified after every accepted transition.
type Observer func(id string, params domain.Params, t Transition)

// View is an immutable copy of a handle's state.
type View struct {
	ID                string        `json:"id"`
	Params            domain.Params `json:"params"`
	Status            domain.Status `json:"status"`
	LastError         string        `json:"last_error,omitempty"`
	SpawnAcknowledged bool          `json:"spawn_acknowledged"`
	Health            float64       `json:"health"`
	Food              int           `json:"food"`
}

// Handle is the record for one connection identity.
// ID and Params never change; everything else is guarded by mu.
type Handle struct {
	ID     string
	Params domain.Params

	conn     Conn
	observer Observer

	mu                sync.Mutex
	status            domain.Status
	lastError         string
	spawnAcknowledged bool
	health            float64
	food              int
}

// NewHandle creates a handle in the connecting state.
func NewHandle(id string, params domain.Params, conn Conn, observer Observer) *Handle {
	return &Handle{
		ID:       id,
		Params:   params,
		conn:     conn,
		observer: observer,
		status:   domain.StatusConnecting,
	}
}

// Status returns the current status.
func (h *Handle) Status() domain.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// LastError returns the last recorded failure, empty if none.
func (h *Handle) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// View returns a snapshot of the handle.
func (h *Handle) View() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return View{
		ID:                h.ID,
		Params:            h.Params,
		Status:            h.status,
		LastError:         h.lastError,
		SpawnAcknowledged: h.spawnAcknowledged,
		Health:            h.health,
		Food:              h.food,
	}
}

// MarkOnline records a confirmed spawn. A repeated spawn for the same
// connection is a no-op and returns false.
func (h *Handle) MarkOnline() bool {
	h.mu.Lock()
	if h.spawnAcknowledged {
		h.mu.Unlock()
		return false
	}
	t, ok := h.transitionLocked(domain.StatusOnline, "spawn")
	if ok {
		h.spawnAcknowledged = true
		h.lastError = ""
	}
	h.mu.Unlock()
	h.notify(t, ok)
	return ok
}

// MarkEnded records the end of the connection. A session that already
// failed keeps its error or kick reason.
func (h *Handle) MarkEnded(reason string) bool {
	h.mu.Lock()
	h.spawnAcknowledged = false
	t, ok := h.transitionLocked(domain.StatusDisconnected, reason)
	h.mu.Unlock()
	h.notify(t, ok)
	return ok
}

// MarkKicked records a server-issued removal.
func (h *Handle) MarkKicked(reason string) bool {
	h.mu.Lock()
	h.spawnAcknowledged = false
	t, ok := h.transitionLocked(domain.StatusKicked, reason)
	if ok {
		h.lastError = reason
	}
	h.mu.Unlock()
	h.notify(t, ok)
	return ok
}

// MarkError records a connect-level failure.
func (h *Handle) MarkError(msg string) bool {
	h.mu.Lock()
	t, ok := h.transitionLocked(domain.StatusError, msg)
	if ok {
		h.lastError = msg
	}
	h.mu.Unlock()
	h.notify(t, ok)
	return ok
}

// SetVitals updates the health proxy fields.
func (h *Handle) SetVitals(health float64, food int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.health = health
	h.food = food
}

// Teardown ends the underlying connection. Errors are returned for logging
// only; callers treat teardown as best-effort.
func (h *Handle) Teardown() error {
	if h.conn == nil {
		return nil
	}
	return h.conn.Close()
}

// Conn returns the underlying session.
func (h *Handle) Conn() Conn {
	return h.conn
}

func (h *Handle) transitionLocked(to State, reason string) (Transition, bool) {
	t := NewTransition(h.status, to, reason)
	if !t.IsValid() {
		return t, false
	}
	h.status = to
	return t, true
}

func (h *Handle) notify(t Transition, ok bool) {
	if ok && h.observer != nil {
		h.observer(h.ID, h.Params, t)
	}
}
