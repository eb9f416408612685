// Package snapshot captures immutable copies of the scored site hierarchy
// and persists them in PostgreSQL for later comparison.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/metrics"
)

// Builder captures snapshots from the live store. A snapshot is a deep copy:
// later edits to the live hierarchy never leak into it.
type Builder struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewBuilder creates a Builder. metrics may be nil.
func NewBuilder(st store.Store, m *metrics.Metrics) *Builder {
	return &Builder{
		store:   st,
		metrics: m,
		logger:  slog.Default().With("component", "snapshot-builder"),
	}
}

// Capture reads the full hierarchy and freezes it as a named snapshot.
func (b *Builder) Capture(ctx context.Context, name string) (*model.Snapshot, error) {
	sites, err := b.store.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy for snapshot: %w", err)
	}
	snap := &model.Snapshot{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Sites:     sites,
	}
	if b.metrics != nil {
		b.metrics.SnapshotsCreated.Inc()
	}
	b.logger.Info("snapshot captured", "id", snap.ID, "name", name, "sites", len(sites))
	return snap, nil
}
