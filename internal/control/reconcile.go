package control

import (
	"context"

	"github.com/vietddude/botkeeper/internal/core/domain"
)

func (k *Keeper) watch(ctx context.Context, edits <-chan []domain.Params) {
	for params := range edits {
		k.Reconcile(ctx, params)
	}
}

// Reconcile makes the pool match params: sessions whose parameters are no
// longer listed are deleted and newly listed parameters get a session.
// Duplicates are matched by count.
func (k *Keeper) Reconcile(ctx context.Context, params []domain.Params) {
	want := make(map[domain.Params]int, len(params))
	for _, p := range params {
		want[p]++
	}

	var stale []string
	for _, e := range k.registry.Entries() {
		if want[e.Params] > 0 {
			want[e.Params]--
			continue
		}
		stale = append(stale, e.ID)
	}

	for _, id := range stale {
		k.Delete(id)
	}

	added := 0
	for _, p := range params {
		if want[p] == 0 {
			continue
		}
		want[p]--
		if err := p.Validate(); err != nil {
			k.log.Warn("[Persistence] Skipping invalid snapshot entry", "params", p, "error", err)
			continue
		}
		if _, err := k.Add(ctx, p); err != nil {
			k.log.Error("[Persistence] Failed to add session from edited snapshot", "params", p.String(), "error", err)
			continue
		}
		added++
	}

	if added > 0 || len(stale) > 0 {
		k.log.Info("[Persistence] Applied external snapshot edit", "added", added, "removed", len(stale))
	}
}
