package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
)

var sample = []domain.Params{
	{Host: "syd.retslav.net", Port: 10257, Identity: "retslav003"},
	{Host: "151.242.106.72", Port: 25340, Identity: "vibegames003"},
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot_configs.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTemp(t)

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNoSnapshot)
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sample))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sample, got)

	// Survives a restart: a fresh Store on the same path reads the same set.
	require.NoError(t, s.Close())
	reopened, err := Open(s.Path())
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, sample, got)
}

func TestStore_FileFormat(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Save(context.Background(), sample[:1]))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"host":"syd.retslav.net","port":10257,"username":"retslav003"}]`, string(data))
}

func TestStore_Malformed(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), FileMode))

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrMalformed)
}

func TestOpen_SecondProcessLocked(t *testing.T) {
	s := openTemp(t)

	_, err := Open(s.Path())
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStore_WatchReportsExternalEdits(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	// Our own write is not reported.
	require.NoError(t, s.Save(ctx, sample))

	edited := []domain.Params{{Host: "135.125.9.13", Port: 2838, Identity: "elementiamc003"}}
	data, err := storage.Encode(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), data, FileMode))

	select {
	case got := <-ch:
		assert.Equal(t, edited, got)
	case <-time.After(5 * time.Second):
		t.Fatal("external edit not reported")
	}
}

func TestStore_RecognisesOlderOwnVersions(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sample[:1]))
	require.NoError(t, s.Save(ctx, sample))

	first, err := storage.Encode(sample[:1])
	require.NoError(t, err)
	assert.True(t, s.isOwnWrite(first), "a superseded own write is still recognised")

	other, err := storage.Encode([]domain.Params{{Host: "other.example", Port: 1, Identity: "x"}})
	require.NoError(t, err)
	assert.False(t, s.isOwnWrite(other))
}

func TestStore_WatchIgnoresBackToBackOwnWrites(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Save(ctx, sample[:1]))
		require.NoError(t, s.Save(ctx, sample))
	}

	// Events arrive in order, so the first report must be this edit.
	edited := []domain.Params{{Host: "135.125.9.13", Port: 2838, Identity: "elementiamc003"}}
	data, err := storage.Encode(edited)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), data, FileMode))

	select {
	case got := <-ch:
		assert.Equal(t, edited, got)
	case <-time.After(5 * time.Second):
		t.Fatal("external edit not reported")
	}
}
