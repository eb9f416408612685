package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
	"github.com/opencommercesearch/relevancy-engine/pkg/postgres"
)

// PGStore persists snapshots in PostgreSQL.
//
// It requires a `relevancy_snapshots` table:
//
//	CREATE TABLE relevancy_snapshots (
//	    id          UUID PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    data        JSONB NOT NULL,
//	    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PGStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPGStore creates a snapshot persistence store.
func NewPGStore(db *postgres.Client) *PGStore {
	return &PGStore{
		db:     db,
		logger: slog.Default().With("component", "snapshot-store"),
	}
}

// Save persists a snapshot.
func (s *PGStore) Save(ctx context.Context, snap *model.Snapshot) error {
	data, err := json.Marshal(snap.Sites)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO relevancy_snapshots (id, name, data, captured_at) VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.Name, data, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.ID, err)
	}
	s.logger.Info("snapshot saved", "id", snap.ID, "name", snap.Name)
	return nil
}

// Latest loads the most recent snapshot. Returns nil, nil when none exist.
func (s *PGStore) Latest(ctx context.Context) (*model.Snapshot, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, data, captured_at FROM relevancy_snapshots ORDER BY captured_at DESC LIMIT 1`,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return snap, err
}

// Get loads one snapshot by ID.
func (s *PGStore) Get(ctx context.Context, id string) (*model.Snapshot, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, data, captured_at FROM relevancy_snapshots WHERE id = $1`,
		id,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s: %w", id, apperrors.ErrNotFound)
	}
	return snap, err
}

// List returns summaries of the last limit snapshots, newest first.
func (s *PGStore) List(ctx context.Context, limit int) ([]model.SnapshotSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, captured_at FROM relevancy_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var summaries []model.SnapshotSummary
	for rows.Next() {
		var sum model.SnapshotSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func scanSnapshot(row *sql.Row) (*model.Snapshot, error) {
	var snap model.Snapshot
	var data []byte
	if err := row.Scan(&snap.ID, &snap.Name, &data, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap.Sites); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot %s: %w", snap.ID, err)
	}
	return &snap, nil
}
