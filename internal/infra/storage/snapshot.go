package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vietddude/botkeeper/internal/core/domain"
)

var (
	// ErrNoSnapshot is returned when no snapshot has been written yet
	ErrNoSnapshot = errors.New("snapshot not found")

	// ErrMalformed is returned when a stored snapshot cannot be decoded
	ErrMalformed = errors.New("snapshot malformed")
)

// SnapshotStore persists the ordered set of connection parameters.
// Save overwrites the whole snapshot; there are no incremental updates.
type SnapshotStore interface {
	// Save replaces the stored snapshot
	Save(ctx context.Context, params []domain.Params) error

	// Load returns the stored snapshot, ErrNoSnapshot or ErrMalformed
	Load(ctx context.Context) ([]domain.Params, error)

	// Close releases the backend
	Close() error
}

// Encode serialises a snapshot in the on-disk format.
func Encode(params []domain.Params) ([]byte, error) {
	if params == nil {
		params = []domain.Params{}
	}
	return json.MarshalIndent(params, "", "  ")
}

// Decode parses a snapshot in the on-disk format.
func Decode(data []byte) ([]domain.Params, error) {
	var params []domain.Params
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return params, nil
}
