package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opencommercesearch/relevancy-engine/internal/events"
	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
)

// StageRefreshResults tags result-refresh failures in a bulk refresh report.
const StageRefreshResults rollup.Stage = "refresh-results"

// ChangeSink receives query-changed notifications. *events.Notifier satisfies
// it; a nil sink makes the refresher run the rollup pipeline inline instead.
type ChangeSink interface {
	Emit(event events.QueryChanged)
}

// Refresher re-fetches result lists from the search API, persists them, and
// triggers rescoring of the affected queries.
type Refresher struct {
	store         store.Store
	provider      Provider
	coord         *rollup.Coordinator
	sink          ChangeSink
	maxConcurrent int
	logger        *slog.Logger
}

// NewRefresher wires a Refresher. sink may be nil, in which case each
// refreshed query is rolled up synchronously.
func NewRefresher(st store.Store, provider Provider, coord *rollup.Coordinator, sink ChangeSink, maxConcurrent int) *Refresher {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Refresher{
		store:         st,
		provider:      provider,
		coord:         coord,
		sink:          sink,
		maxConcurrent: maxConcurrent,
		logger:        slog.Default().With("component", "refresher"),
	}
}

// RefreshQuery re-fetches one query's result list and triggers its rescoring.
// When the search call fails the stored results are left untouched and no
// rescoring happens.
func (r *Refresher) RefreshQuery(ctx context.Context, ref model.QueryRef) error {
	if err := r.refreshResults(ctx, ref); err != nil {
		return err
	}
	r.logger.Info("results refreshed", "query", ref.String())

	if r.sink != nil {
		r.sink.Emit(events.NewQueryChanged(ref, events.ReasonResultsRefreshed))
		return nil
	}
	return r.coord.RollUp(ctx, ref)
}

// RefreshAll re-fetches every query's result list concurrently, then runs a
// full recompute sweep. A query whose refresh fails keeps its previous
// results and is still rescored by the sweep; its failure is added to the
// returned report.
func (r *Refresher) RefreshAll(ctx context.Context) (*rollup.Report, error) {
	refs, err := r.store.QueryRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating queries for refresh: %w", err)
	}
	r.logger.Info("bulk refresh started", "queries", len(refs))

	var mu sync.Mutex
	var refreshErrors []rollup.ItemError
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)
	for _, ref := range refs {
		g.Go(func() error {
			if err := r.refreshResults(gctx, ref); err != nil {
				mu.Lock()
				refreshErrors = append(refreshErrors, rollup.ItemError{
					Phase: StageRefreshResults,
					Key:   ref.String(),
					Err:   err,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	report, err := r.coord.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	report.Errors = append(refreshErrors, report.Errors...)
	return report, nil
}

// refreshResults fetches and persists one result list without triggering a
// per-query rollup; RefreshAll's trailing sweep rescoring covers it.
func (r *Refresher) refreshResults(ctx context.Context, ref model.QueryRef) error {
	site, err := r.store.Site(ctx, ref.SiteID)
	if err != nil {
		return fmt.Errorf("loading site %s: %w", ref.SiteID, err)
	}
	query, err := r.store.Query(ctx, ref)
	if err != nil {
		return fmt.Errorf("loading query %s: %w", ref.String(), err)
	}
	items, err := r.provider.Search(ctx, site, query.Name)
	if err != nil {
		return err
	}
	if err := r.store.SetQueryResults(ctx, ref, items); err != nil {
		return fmt.Errorf("persisting results for %s: %w", ref.String(), err)
	}
	return nil
}
