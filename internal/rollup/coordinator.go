package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/scoring"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
	"github.com/opencommercesearch/relevancy-engine/pkg/metrics"
	"github.com/opencommercesearch/relevancy-engine/pkg/resilience"
)

// Stage identifies a step of the rollup pipeline.
type Stage string

const (
	StageScoreQuery    Stage = "score-query"
	StageAggregateCase Stage = "aggregate-case"
	StageAggregateSite Stage = "aggregate-site"
)

// StageError reports which pipeline stage failed for a single-change rollup.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("rollup stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ItemError is one failed item of a bulk sweep phase.
type ItemError struct {
	Phase Stage
	Key   string
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("sweep %s %s: %v", e.Phase, e.Key, e.Err)
}

// Report summarises a bulk sweep: totals per phase and every per-item error.
// A sweep with a non-empty Errors slice completed but only partially.
type Report struct {
	Queries  int
	Cases    int
	Sites    int
	Errors   []ItemError
	Duration time.Duration
}

// Partial reports whether some items failed while others completed.
func (r *Report) Partial() bool {
	return len(r.Errors) > 0
}

// Coordinator runs the Query → Case → Site pipeline. For a single change the
// three stages are strictly sequential: each stage depends on the previous
// stage's committed write, and a stage failure aborts the remainder. Across
// independent changes no ordering is imposed; the store arbitrates
// last-write-wins, and a stale in-flight rollup can at worst cost one
// redundant aggregation pass because every stage re-reads current state.
type Coordinator struct {
	store         store.Store
	scorer        *scoring.QueryScorer
	cases         *CaseAggregator
	sites         *SiteAggregator
	maxConcurrent int
	storeTimeout  time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewCoordinator wires a Coordinator from its collaborators. metrics may be
// nil.
func NewCoordinator(st store.Store, scorer *scoring.QueryScorer, cfg *config.Config, m *metrics.Metrics) *Coordinator {
	maxConcurrent := cfg.Rollup.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Coordinator{
		store:         st,
		scorer:        scorer,
		cases:         NewCaseAggregator(st, cfg.Scoring),
		sites:         NewSiteAggregator(st, cfg.Scoring),
		maxConcurrent: maxConcurrent,
		storeTimeout:  cfg.Rollup.StoreTimeout,
		metrics:       m,
		logger:        slog.Default().With("component", "rollup-coordinator"),
	}
}

// RollUp runs the full pipeline for one changed query. The returned error,
// when non-nil, is a *StageError naming the stage that failed; later stages
// were not run.
func (c *Coordinator) RollUp(ctx context.Context, ref model.QueryRef) error {
	c.logger.Info("rollup started", "query", ref.String())

	outcome, err := timed(ctx, c, StageScoreQuery, func(ctx context.Context) (scoring.Outcome, error) {
		return c.scorer.ScoreStored(ctx, ref)
	})
	if err != nil {
		return c.failed(StageScoreQuery, err)
	}
	if !outcome.Rollup {
		return nil
	}

	if _, err := timed(ctx, c, StageAggregateCase, func(ctx context.Context) (float64, error) {
		return c.cases.Aggregate(ctx, ref.SiteID, ref.CaseID)
	}); err != nil {
		return c.failed(StageAggregateCase, err)
	}

	if _, err := timed(ctx, c, StageAggregateSite, func(ctx context.Context) (float64, error) {
		return c.sites.Aggregate(ctx, ref.SiteID)
	}); err != nil {
		return c.failed(StageAggregateSite, err)
	}

	c.logger.Info("rollup finished", "query", ref.String(), "score", outcome.Score)
	return nil
}

func (c *Coordinator) failed(stage Stage, err error) error {
	if c.metrics != nil {
		c.metrics.RollupFailuresTotal.WithLabelValues(string(stage)).Inc()
	}
	c.logger.Error("rollup aborted", "stage", string(stage), "error", err)
	return &StageError{Stage: stage, Err: err}
}

// timed runs one pipeline stage under the store timeout and records its
// duration.
func timed[T any](ctx context.Context, c *Coordinator, stage Stage, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	var v T
	err := resilience.WithTimeout(ctx, c.storeTimeout, string(stage), func(ctx context.Context) error {
		var ferr error
		v, ferr = fn(ctx)
		return ferr
	})
	if c.metrics != nil {
		c.metrics.RollupStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
	return v, err
}

// Sweep recomputes everything: every query score, then every case score,
// then every site score. The three phases are strictly sequential; case
// aggregation starts only after all query scoring has settled, while items
// within a phase run concurrently, bounded by the configured limit. A failed
// item never stops its siblings; all failures are collected in the Report.
func (c *Coordinator) Sweep(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	var mu sync.Mutex
	fail := func(phase Stage, key string, err error) {
		mu.Lock()
		report.Errors = append(report.Errors, ItemError{Phase: phase, Key: key, Err: err})
		mu.Unlock()
		if c.metrics != nil {
			c.metrics.SweepItemsTotal.WithLabelValues(string(phase), "error").Inc()
		}
	}
	ok := func(phase Stage) {
		if c.metrics != nil {
			c.metrics.SweepItemsTotal.WithLabelValues(string(phase), "ok").Inc()
		}
	}

	refs, err := c.store.QueryRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating queries for sweep: %w", err)
	}
	siteIDs, err := c.store.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating sites for sweep: %w", err)
	}

	c.logger.Info("sweep started", "queries", len(refs), "sites", len(siteIDs))

	// Phase 1: score all queries.
	report.Queries = len(refs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, ref := range refs {
		g.Go(func() error {
			if _, err := c.scorer.ScoreStored(gctx, ref); err != nil {
				fail(StageScoreQuery, ref.String(), err)
				return nil
			}
			ok(StageScoreQuery)
			return nil
		})
	}
	_ = g.Wait()

	// Phase 2: aggregate all cases.
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, siteID := range siteIDs {
		caseIDs, err := c.store.Cases(ctx, siteID)
		if err != nil {
			fail(StageAggregateCase, siteID, err)
			continue
		}
		report.Cases += len(caseIDs)
		for _, caseID := range caseIDs {
			g.Go(func() error {
				if _, err := c.cases.Aggregate(gctx, siteID, caseID); err != nil {
					fail(StageAggregateCase, siteID+"/"+caseID, err)
					return nil
				}
				ok(StageAggregateCase)
				return nil
			})
		}
	}
	_ = g.Wait()

	// Phase 3: aggregate all sites.
	report.Sites = len(siteIDs)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, siteID := range siteIDs {
		g.Go(func() error {
			if _, err := c.sites.Aggregate(gctx, siteID); err != nil {
				fail(StageAggregateSite, siteID, err)
				return nil
			}
			ok(StageAggregateSite)
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start)
	if c.metrics != nil {
		c.metrics.SweepDuration.Observe(report.Duration.Seconds())
	}
	if report.Partial() {
		c.logger.Warn("sweep finished with failures",
			"queries", report.Queries,
			"cases", report.Cases,
			"sites", report.Sites,
			"failures", len(report.Errors),
			"duration", report.Duration,
		)
	} else {
		c.logger.Info("sweep finished",
			"queries", report.Queries,
			"cases", report.Cases,
			"sites", report.Sites,
			"duration", report.Duration,
		)
	}
	return report, nil
}

// FailedStage extracts the stage of a rollup error, or "" when err is not a
// stage failure.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
