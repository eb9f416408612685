package scoring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
	"github.com/opencommercesearch/relevancy-engine/pkg/metrics"
)

// Outcome is the result of scoring one query.
type Outcome struct {
	// Score is the persisted NDCG value (0 for unjudged queries).
	Score float64
	// Rollup is set when the owning case and site should be recomputed.
	Rollup bool
}

// QueryScorer computes and persists a single query's NDCG score. The stored
// score is a pure function of the query's current results and judgements, so
// repeating a call with identical inputs writes the identical value.
type QueryScorer struct {
	store   store.Store
	math    *ScoreMath
	missing float64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewQueryScorer creates a QueryScorer. metrics may be nil.
func NewQueryScorer(st store.Store, cfg config.ScoringConfig, m *metrics.Metrics) *QueryScorer {
	return &QueryScorer{
		store:   st,
		math:    NewScoreMath(cfg),
		missing: cfg.MissingScore,
		metrics: m,
		logger:  slog.Default().With("component", "query-scorer"),
	}
}

// Score computes a query's NDCG from the given inputs and persists it.
// A query with no result context cannot be scored; a query with no
// judgements scores 0 without computing NDCG, distinguishing "never judged"
// from "judged but all zero". A persistence failure is returned with
// Rollup false so ancestors are never aggregated over an unpersisted score.
func (s *QueryScorer) Score(ctx context.Context, ref model.QueryRef, results []model.ResultItem, judgements map[string]model.Judgement) (Outcome, error) {
	if !ref.Valid() {
		s.count("invalid")
		return Outcome{}, fmt.Errorf("%w: incomplete query ref %q", apperrors.ErrInvalidInput, ref)
	}
	if results == nil {
		s.count("invalid")
		return Outcome{}, fmt.Errorf("%w: query %s has no results to score against", apperrors.ErrInvalidInput, ref)
	}

	var score float64
	if len(judgements) == 0 {
		s.logger.Info("no judgements for query, scoring zero", "query", ref.String())
		s.count("unjudged")
	} else {
		grades := Join(results, judgements, s.missing)
		score = s.math.NDCG(grades)
		s.count("scored")
		if s.metrics != nil {
			s.metrics.NDCGDistribution.Observe(score)
		}
	}

	if err := s.store.SetQueryScore(ctx, ref, score); err != nil {
		s.count("error")
		return Outcome{}, fmt.Errorf("persisting score %.3f for query %s: %w", score, ref, err)
	}

	s.logger.Info("query scored", "query", ref.String(), "score", score)
	return Outcome{Score: score, Rollup: true}, nil
}

// ScoreStored reads the query's current results and judgements from the
// store and scores them. This is the entry point the rollup pipeline uses:
// it always re-reads at call time, never from a cache.
func (s *QueryScorer) ScoreStored(ctx context.Context, ref model.QueryRef) (Outcome, error) {
	q, err := s.store.Query(ctx, ref)
	if err != nil {
		s.count("error")
		return Outcome{}, fmt.Errorf("reading query %s: %w", ref, err)
	}
	return s.Score(ctx, ref, q.Results, q.Judgements)
}

func (s *QueryScorer) count(outcome string) {
	if s.metrics != nil {
		s.metrics.QueriesScoredTotal.WithLabelValues(outcome).Inc()
	}
}
