package control

import (
	"sync"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/registry"
)

// gatedPersister holds registry writes back while the pool is being rebuilt,
// so a crash during restore cannot overwrite the snapshot with a partial pool.
type gatedPersister struct {
	inner registry.Persister

	mu    sync.Mutex
	held  bool
	dirty bool
	last  []domain.Params
}

func (g *gatedPersister) Persist(params []domain.Params) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		g.last = params
		g.dirty = true
		return
	}
	g.inner.Persist(params)
}

func (g *gatedPersister) hold() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = true
}

// release reopens the gate and writes the newest held snapshot, if any.
func (g *gatedPersister) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
	if g.dirty {
		g.inner.Persist(g.last)
	}
	g.last, g.dirty = nil, false
}
