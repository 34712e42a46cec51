package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/botkeeper/internal/core/domain"
	"github.com/vietddude/botkeeper/internal/infra/storage"
)

const (
	deleteSnapshotQuery = `DELETE FROM session_snapshot`
	insertSnapshotQuery = `INSERT INTO session_snapshot (position, host, port, username)
VALUES (:position, :host, :port, :username)`
	selectSnapshotQuery = `SELECT position, host, port, username FROM session_snapshot ORDER BY position`
)

type snapshotRow struct {
	Position int    `db:"position"`
	Host     string `db:"host"`
	Port     int    `db:"port"`
	Username string `db:"username"`
}

// SnapshotRepo implements storage.SnapshotStore using PostgreSQL.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new PostgreSQL snapshot repository.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save replaces every row in one transaction.
func (r *SnapshotRepo) Save(ctx context.Context, params []domain.Params) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteSnapshotQuery); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	for i, p := range params {
		row := snapshotRow{Position: i, Host: p.Host, Port: p.Port, Username: p.Identity}
		if _, err := tx.NamedExecContext(ctx, insertSnapshotQuery, row); err != nil {
			return fmt.Errorf("failed to insert snapshot row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the rows in position order.
func (r *SnapshotRepo) Load(ctx context.Context) ([]domain.Params, error) {
	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows, selectSnapshotQuery); err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, storage.ErrNoSnapshot
	}

	params := make([]domain.Params, 0, len(rows))
	for _, row := range rows {
		params = append(params, domain.Params{Host: row.Host, Port: row.Port, Identity: row.Username})
	}
	return params, nil
}

// Close closes the underlying database.
func (r *SnapshotRepo) Close() error {
	return r.db.Close()
}
