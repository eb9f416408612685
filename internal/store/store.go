// Package store defines the abstract relevancy store, the hierarchical
// sites/cases/queries tree plus the denormalized per-site score index, and
// its Redis and in-memory implementations. Every aggregation pass re-reads
// through this interface at call time; nothing is cached across operations.
package store

import (
	"context"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
)

// Store is the only shared mutable resource of the engine. Reads reflect the
// latest committed writes at call time.
type Store interface {
	// Site returns a site's configuration and stored score, without cases.
	Site(ctx context.Context, siteID string) (*model.Site, error)
	// Sites lists all site IDs.
	Sites(ctx context.Context) ([]string, error)
	// Cases lists the case IDs under a site.
	Cases(ctx context.Context, siteID string) ([]string, error)
	// Queries lists the query IDs under a case.
	Queries(ctx context.Context, siteID, caseID string) ([]string, error)
	// Query returns one query node. A missing node yields ErrNotFound.
	Query(ctx context.Context, ref model.QueryRef) (*model.Query, error)
	// QueryRefs enumerates every query under every case of every site,
	// flattened for the bulk sweep.
	QueryRefs(ctx context.Context) ([]model.QueryRef, error)

	// SetQueryResults replaces a query's result list wholesale.
	SetQueryResults(ctx context.Context, ref model.QueryRef, items []model.ResultItem) error
	// SetQueryScore persists a query's score to its node and to the per-site
	// score index, as one logical write.
	SetQueryScore(ctx context.Context, ref model.QueryRef, score float64) error
	// SetCaseScore persists a derived case score.
	SetCaseScore(ctx context.Context, siteID, caseID string, score float64) error
	// SetSiteScore persists a derived site score.
	SetSiteScore(ctx context.Context, siteID string, score float64) error

	// ScoresBySite reads the per-site score index: one entry per scored
	// query of the site, across all its cases.
	ScoresBySite(ctx context.Context, siteID string) ([]model.ScoreEntry, error)

	// Tree deep-reads the full hierarchy for snapshotting.
	Tree(ctx context.Context) (map[string]*model.Site, error)
}
