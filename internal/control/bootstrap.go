package control

import (
	"context"
	"errors"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/core/registry"
)

// Bootstrap rebuilds the pool from the snapshot, or installs the configured
// defaults when there is nothing to restore. Snapshot writes are held until
// the pool is complete.
func (k *Keeper) Bootstrap(ctx context.Context) {
	k.gate.hold()
	defer k.gate.release()

	if loaded := k.persister.Load(ctx); len(loaded) > 0 {
		k.log.Info("[Persistence] Attempting to restore sessions", "count", len(loaded))
		for _, params := range loaded {
			k.restore(ctx, params)
		}
		return
	}
	k.installDefaults(ctx)
}

func (k *Keeper) restore(ctx context.Context, params domain.Params) {
	for attempt := 0; ; attempt++ {
		id := k.registry.RestoredID()
		_, err := k.factory.Create(ctx, id, params)
		if errors.Is(err, registry.ErrDuplicateID) && attempt < maxIDAttempts {
			continue
		}
		if err != nil {
			k.log.Error("[Persistence] Failed to restore session", "params", params.String(), "error", err)
		}
		return
	}
}

// installDefaults creates every default entry under its fixed id. Entries
// whose id is already registered are skipped, so running it twice is safe.
func (k *Keeper) installDefaults(ctx context.Context) {
	k.log.Info("[Defaults] Creating default sessions", "count", len(k.cfg.Defaults))

	for i, params := range k.cfg.Defaults {
		id := registry.DefaultID(i + 1)
		if _, ok := k.registry.Get(id); ok || k.registry.Reserved(id) {
			k.log.Info("[Defaults] Session already active, skipping creation", "id", id)
			continue
		}
		if _, err := k.factory.Create(ctx, id, params); err != nil {
			k.log.Error("[Defaults] Failed to create default session", "id", id, "error", err)
		}
	}

	// Written even when nothing changed so the file exists after first run.
	k.gate.Persist(k.registry.Params())
}
