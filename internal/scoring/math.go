// Package scoring implements the relevance-scoring core: NDCG math over
// graded judgement lists, the joiner that aligns judgements with search
// results, and the query scorer that persists the outcome.
package scoring

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/opencommercesearch/relevancy-engine/pkg/config"
)

// ScoreMath computes DCG, IDCG, and NDCG over graded relevance lists. It is
// pure: no I/O, no state beyond the configured constants.
type ScoreMath struct {
	resultLimit      int
	missingScore     float64
	fractionalDigits int
}

// NewScoreMath creates a ScoreMath from the scoring configuration.
func NewScoreMath(cfg config.ScoringConfig) *ScoreMath {
	return &ScoreMath{
		resultLimit:      cfg.ResultLimit,
		missingScore:     cfg.MissingScore,
		fractionalDigits: cfg.FractionalDigits,
	}
}

// DCG computes discounted cumulative gain over a positionally ordered graded
// list: sum of (2^g - 1) / log2(i + 1) for 1-based position i. An empty list
// yields 0. The result is rounded to the configured fractional digits.
func (m *ScoreMath) DCG(grades []float64) float64 {
	if len(grades) == 0 {
		return 0
	}
	var dcg float64
	for i, g := range grades {
		dcg += (math.Pow(2, g) - 1) / math.Log2(float64(i+2))
	}
	return roundTo(dcg, m.fractionalDigits)
}

// IDCG computes the best achievable DCG within the displayed result window:
// the first min(resultLimit, n) grades sorted descending, padded up to
// resultLimit entries with the missing-score constant.
func (m *ScoreMath) IDCG(grades []float64) float64 {
	upper := m.resultLimit
	if len(grades) < upper {
		upper = len(grades)
	}
	ideal := make([]float64, 0, m.resultLimit)
	ideal = append(ideal, grades[:upper]...)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	for i := len(ideal); i < m.resultLimit; i++ {
		ideal = append(ideal, m.missingScore)
	}
	return m.DCG(ideal)
}

// NDCG computes DCG/IDCG rounded to one more fractional digit than the
// component scores. A zero IDCG resolves to exactly 0, never a division.
func (m *ScoreMath) NDCG(grades []float64) float64 {
	idcg := m.IDCG(grades)
	if idcg == 0 {
		return 0
	}
	return roundTo(m.DCG(grades)/idcg, m.fractionalDigits+1)
}

// ParseScore coerces a judgement score to a number. Empty or non-numeric
// text parses as 0, not an error: reviewers type these by hand.
func ParseScore(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
