package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
	"github.com/vietddude/botkeeper/internal/infra/storage/memory"
)

func TestPersister_SaveFailureIsNotFatal(t *testing.T) {
	store := memory.NewMemoryStorage()
	store.FailSaves(errors.New("disk full"))
	p := storage.NewPersister(store, "memory")

	assert.NotPanics(t, func() {
		p.Persist([]domain.Params{{Host: "a", Port: 1, Identity: "x"}})
	})
	assert.Equal(t, 1, store.Saves())
}

func TestPersister_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("absent", func(t *testing.T) {
		p := storage.NewPersister(memory.NewMemoryStorage(), "memory")
		assert.Empty(t, p.Load(ctx))
	})

	t.Run("malformed", func(t *testing.T) {
		store := memory.NewMemoryStorage()
		store.FailLoads(storage.ErrMalformed)
		p := storage.NewPersister(store, "memory")
		assert.Empty(t, p.Load(ctx))
	})

	t.Run("invalid entries dropped", func(t *testing.T) {
		store := memory.NewMemoryStorage()
		require.NoError(t, store.Save(ctx, []domain.Params{
			{Host: "a.example", Port: 25565, Identity: "one"},
			{Host: "", Port: 25565, Identity: "two"},
			{Host: "c.example", Port: 70000, Identity: "three"},
		}))
		p := storage.NewPersister(store, "memory")

		got := p.Load(ctx)
		require.Len(t, got, 1)
		assert.Equal(t, "one", got[0].Identity)
	})
}

func TestDecode_Malformed(t *testing.T) {
	_, err := storage.Decode([]byte(`{"host":"x"}`))
	assert.ErrorIs(t, err, storage.ErrMalformed)

	got, err := storage.Decode([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, got)
}
