package file

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
)

// Watch reports snapshots written to the file by someone other than this
// Store. The channel is closed when ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan []domain.Params, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// renameio replaces the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ch := make(chan []domain.Params, 1)
	log := slog.Default().With("component", "snapshot-watch", "path", s.path)

	go func() {
		defer close(ch)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Snapshot watcher error", "error", err)
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}

				data, err := os.ReadFile(s.path)
				if err != nil {
					if !errors.Is(err, os.ErrNotExist) {
						log.Warn("Failed to read edited snapshot", "error", err)
					}
					continue
				}
				if s.isOwnWrite(data) {
					continue
				}
				params, err := storage.Decode(data)
				if err != nil {
					log.Error("Edited snapshot is malformed, ignoring", "error", err)
					continue
				}

				s.acceptEdit(data)

				select {
				case ch <- params:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
