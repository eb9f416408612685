// Package rollup propagates leaf-level score changes into derived case and
// site scores. The Coordinator sequences the three-stage pipeline for a
// single change and runs the phased bulk sweep used by the manual full
// recompute.
package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
)

// CaseAggregator recomputes a case's score as the arithmetic mean of its
// queries' stored scores.
type CaseAggregator struct {
	store  store.Store
	digits int
	logger *slog.Logger
}

// NewCaseAggregator creates a CaseAggregator rounding to one digit more than
// the configured fractional digits, matching NDCG precision.
func NewCaseAggregator(st store.Store, cfg config.ScoringConfig) *CaseAggregator {
	return &CaseAggregator{
		store:  st,
		digits: cfg.FractionalDigits + 1,
		logger: slog.Default().With("component", "case-aggregator"),
	}
}

// Aggregate reads the site's score index, averages the entries belonging to
// the case, and persists the mean to the case's score field. A case with no
// scored queries persists 0. The read happens at call time so the mean never
// reflects data older than the write that triggered it.
func (a *CaseAggregator) Aggregate(ctx context.Context, siteID, caseID string) (float64, error) {
	entries, err := a.store.ScoresBySite(ctx, siteID)
	if err != nil {
		return 0, fmt.Errorf("reading scores of site %s: %w", siteID, err)
	}

	var sum float64
	var count int
	for _, e := range entries {
		if e.CaseID == caseID {
			sum += e.Val
			count++
		}
	}

	var mean float64
	if count > 0 {
		mean = roundTo(sum/float64(count), a.digits)
	}
	if err := a.store.SetCaseScore(ctx, siteID, caseID, mean); err != nil {
		return 0, fmt.Errorf("persisting score %.3f for case %s/%s: %w", mean, siteID, caseID, err)
	}

	a.logger.Info("case aggregated", "site", siteID, "case", caseID, "score", mean, "queries", count)
	return mean, nil
}

// SiteAggregator recomputes a site's score as the arithmetic mean of every
// query score under every case of the site. The hierarchy is deliberately
// flattened: a case with ten queries weighs ten times a case with one.
type SiteAggregator struct {
	store  store.Store
	digits int
	logger *slog.Logger
}

// NewSiteAggregator creates a SiteAggregator.
func NewSiteAggregator(st store.Store, cfg config.ScoringConfig) *SiteAggregator {
	return &SiteAggregator{
		store:  st,
		digits: cfg.FractionalDigits + 1,
		logger: slog.Default().With("component", "site-aggregator"),
	}
}

// Aggregate averages all of a site's query scores and persists the mean to
// the site's score field. A site with no scored queries persists 0.
func (a *SiteAggregator) Aggregate(ctx context.Context, siteID string) (float64, error) {
	entries, err := a.store.ScoresBySite(ctx, siteID)
	if err != nil {
		return 0, fmt.Errorf("reading scores of site %s: %w", siteID, err)
	}

	var sum float64
	for _, e := range entries {
		sum += e.Val
	}

	var mean float64
	if len(entries) > 0 {
		mean = roundTo(sum/float64(len(entries)), a.digits)
	}
	if err := a.store.SetSiteScore(ctx, siteID, mean); err != nil {
		return 0, fmt.Errorf("persisting score %.3f for site %s: %w", mean, siteID, err)
	}

	a.logger.Info("site aggregated", "site", siteID, "score", mean, "queries", len(entries))
	return mean, nil
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
