package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/botkeeper/internal/core/config"
	"github.com/vietddude/botkeeper/internal/health"
	redisclient "github.com/vietddude/botkeeper/internal/infra/redis"
	"github.com/vietddude/botkeeper/internal/infra/storage"
	"github.com/vietddude/botkeeper/internal/infra/storage/file"
	"github.com/vietddude/botkeeper/internal/infra/storage/memory"
	"github.com/vietddude/botkeeper/internal/infra/storage/postgres"
)

// backend is the opened snapshot store plus the handles some backends need
// beyond Save and Load.
type backend struct {
	name    string
	store   storage.SnapshotStore
	checker health.StoreChecker // nil for local backends
	file    *file.Store         // set for the file backend
	db      *postgres.DB        // set for the postgres backend
}

func openBackend(ctx context.Context, cfg config.StoreConfig) (*backend, error) {
	b := &backend{name: cfg.Backend}

	switch cfg.Backend {
	case config.BackendFile, "":
		fs, err := file.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot file: %w", err)
		}
		b.name = config.BackendFile
		b.store = fs
		b.file = fs
		slog.Info("Using file snapshot storage", "path", fs.Path())

	case config.BackendMemory:
		b.store = memory.NewMemoryStorage()
		slog.Info("Using Memory storage")

	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		b.store = client
		b.checker = client
		slog.Info("Using Redis snapshot storage")

	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		b.store = postgres.NewSnapshotRepo(db)
		b.checker = db
		b.db = db
		slog.Info("Using PostgreSQL storage")

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return b, nil
}
