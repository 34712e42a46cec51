// Package registry is the single source of truth for which sessions should be
// connected right now.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/session"
)

var (
	// ErrDuplicateID is returned when inserting an id that is already present
	ErrDuplicateID = errors.New("session id already registered")

	// ErrNotReserved is returned when filling an id without a reservation
	ErrNotReserved = errors.New("session id not reserved")
)

// Persister receives the full parameter set after every membership change.
type Persister interface {
	Persist(params []domain.Params)
}

// slot is one registry entry. A nil handle marks a reservation held by an
// in-flight reconnect: the id is not visible to Get or List but keeps its
// position and its parameters stay in the snapshot.
type slot struct {
	handle *session.Handle
	params domain.Params
}

// Registry maps id to handle in insertion order.
type Registry struct {
	mu        sync.RWMutex
	slots     map[string]*slot
	order     []string
	persister Persister
	now       func() time.Time
}

// New creates an empty registry. persister may be nil.
func New(persister Persister) *Registry {
	return &Registry{
		slots:     make(map[string]*slot),
		persister: persister,
		now:       time.Now,
	}
}

// Insert adds a handle under a new id and persists.
func (r *Registry) Insert(h *session.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[h.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, h.ID)
	}
	r.slots[h.ID] = &slot{handle: h, params: h.Params}
	r.order = append(r.order, h.ID)
	r.persistLocked()
	return nil
}

// Reserve detaches the live handle for id and leaves a reservation in its
// place. The detached handle is returned; the id reads as absent until Fill.
func (r *Registry) Reserve(id string) (*session.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.handle == nil {
		return nil, false
	}
	h := s.handle
	s.handle = nil
	r.persistLocked()
	return h, true
}

// Fill installs h into the reservation for h.ID.
func (r *Registry) Fill(h *session.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[h.ID]
	if !ok || s.handle != nil {
		return fmt.Errorf("%w: %s", ErrNotReserved, h.ID)
	}
	s.handle = h
	s.params = h.Params
	r.persistLocked()
	return nil
}

// Release drops the reservation for id. It reports whether one existed.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.handle != nil {
		return false
	}
	r.deleteLocked(id)
	r.persistLocked()
	return true
}

// Reserved reports whether id is held by an in-flight reconnect.
func (r *Registry) Reserved(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	return ok && s.handle == nil
}

// Remove deletes a live handle. Removing a missing id is a no-op.
func (r *Registry) Remove(id string) (*session.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.handle == nil {
		return nil, false
	}
	r.deleteLocked(id)
	r.persistLocked()
	return s.handle, true
}

// Get returns the live handle for id.
func (r *Registry) Get(id string) (*session.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[id]
	if !ok || s.handle == nil {
		return nil, false
	}
	return s.handle, true
}

// List returns live handles in insertion order.
func (r *Registry) List() []*session.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*session.Handle, 0, len(r.order))
	for _, id := range r.order {
		if h := r.slots[id].handle; h != nil {
			handles = append(handles, h)
		}
	}
	return handles
}

// IDs returns the ids of live handles in insertion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.slots[id].handle != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return len(r.IDs())
}

// Entry is one registry slot. Reserved entries belong to an in-flight
// reconnect and have no live handle.
type Entry struct {
	ID       string
	Params   domain.Params
	Reserved bool
}

// Entries returns every slot, reservations included, in insertion order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		s := r.slots[id]
		entries = append(entries, Entry{ID: id, Params: s.params, Reserved: s.handle == nil})
	}
	return entries
}

// Params returns the parameters of every slot, reservations included, in
// insertion order.
func (r *Registry) Params() []domain.Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.paramsLocked()
}

// NewID derives an unused id from the current time: bot_<unixmillis>, with a
// _N suffix when two ids are requested within the same millisecond.
func (r *Registry) NewID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := "bot_" + strconv.FormatInt(r.now().UnixMilli(), 10)
	id := base
	for n := 2; r.slots[id] != nil; n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	return id
}

// RestoredID returns a fresh id for a session restored from a snapshot.
func (r *Registry) RestoredID() string {
	suffix := uuid.NewString()[:5]
	return "bot_" + strconv.FormatInt(r.now().UnixMilli(), 10) + "_restored_" + suffix
}

// DefaultID returns the fixed id of the n-th (1-based) built-in default.
func DefaultID(n int) string {
	return "bot_default_" + strconv.Itoa(n)
}

func (r *Registry) deleteLocked(id string) {
	delete(r.slots, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (r *Registry) paramsLocked() []domain.Params {
	params := make([]domain.Params, 0, len(r.order))
	for _, id := range r.order {
		params = append(params, r.slots[id].params)
	}
	return params
}

func (r *Registry) persistLocked() {
	if r.persister != nil {
		r.persister.Persist(r.paramsLocked())
	}
}
