package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/metrics"
)

const defaultPersistTimeout = 5 * time.Second

// Persister mirrors registry membership into a SnapshotStore.
// Write failures are logged and never returned: the in-memory registry stays
// authoritative for the running process.
type Persister struct {
	store   SnapshotStore
	backend string
	timeout time.Duration
	log     *slog.Logger
}

// NewPersister creates a Persister for the named backend.
func NewPersister(store SnapshotStore, backend string) *Persister {
	return &Persister{
		store:   store,
		backend: backend,
		timeout: defaultPersistTimeout,
		log:     slog.Default().With("component", "persistence", "backend", backend),
	}
}

// Persist overwrites the snapshot with params.
func (p *Persister) Persist(params []domain.Params) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.store.Save(ctx, params); err != nil {
		metrics.SnapshotWrites.WithLabelValues(p.backend, "failure").Inc()
		p.log.Error("[Persistence] Failed to save session snapshot", "error", err)
		return
	}
	metrics.SnapshotWrites.WithLabelValues(p.backend, "success").Inc()
	metrics.SnapshotSize.Set(float64(len(params)))
	p.log.Info("[Persistence] Saved session snapshot", "count", len(params))
}

// Load returns the stored parameters. A missing or malformed snapshot yields
// nil; malformed snapshots and invalid entries are logged.
func (p *Persister) Load(ctx context.Context) []domain.Params {
	params, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		p.log.Info("[Persistence] Snapshot not found, starting fresh")
		return nil
	case errors.Is(err, ErrMalformed):
		p.log.Error("[Persistence] Snapshot malformed, ignoring", "error", err)
		return nil
	case err != nil:
		p.log.Error("[Persistence] Failed to read snapshot", "error", err)
		return nil
	}

	valid := make([]domain.Params, 0, len(params))
	for _, param := range params {
		if err := param.Validate(); err != nil {
			p.log.Warn("[Persistence] Skipping invalid snapshot entry", "params", param, "error", err)
			continue
		}
		valid = append(valid, param)
	}
	return valid
}
