package scoring

import (
	"testing"

	"github.com/opencommercesearch/relevancy-engine/pkg/config"
)

func newTestMath(resultLimit int, missingScore float64) *ScoreMath {
	return NewScoreMath(config.ScoringConfig{
		ResultLimit:      resultLimit,
		MissingScore:     missingScore,
		FractionalDigits: 2,
	})
}

func TestDCGEmptyList(t *testing.T) {
	m := newTestMath(6, 1)
	if got := m.DCG(nil); got != 0 {
		t.Errorf("DCG(nil) = %v, want 0", got)
	}
	if got := m.DCG([]float64{}); got != 0 {
		t.Errorf("DCG([]) = %v, want 0", got)
	}
}

func TestDCGKnownVector(t *testing.T) {
	m := newTestMath(6, 1)
	grades := []float64{3, 2, 3, 1, 1, 2}
	if got := m.DCG(grades); got != 14.28 {
		t.Errorf("DCG(%v) = %v, want 14.28", grades, got)
	}
}

func TestIDCGKnownVector(t *testing.T) {
	m := newTestMath(6, 1)
	grades := []float64{3, 2, 3, 1, 1, 2}
	if got := m.IDCG(grades); got != 14.95 {
		t.Errorf("IDCG(%v) = %v, want 14.95", grades, got)
	}
}

func TestNDCGKnownVector(t *testing.T) {
	m := newTestMath(6, 1)
	grades := []float64{3, 2, 3, 1, 1, 2}
	if got := m.NDCG(grades); got != 0.955 {
		t.Errorf("NDCG(%v) = %v, want 0.955", grades, got)
	}
}

func TestIDCGPadsShortListsWithMissingScore(t *testing.T) {
	m := newTestMath(6, 1)
	// Three graded entries padded with three missing-score entries; the
	// ideal list is always resultLimit long.
	short := m.IDCG([]float64{3, 2, 1})
	full := m.DCG([]float64{3, 2, 1, 1, 1, 1})
	if short != full {
		t.Errorf("IDCG([3 2 1]) = %v, want %v (padded to limit)", short, full)
	}
}

func TestIDCGSortsWithinWindowOnly(t *testing.T) {
	// With a limit of 2, a high grade beyond the window must not leak into
	// the ideal ranking.
	m := newTestMath(2, 1)
	withTail := m.IDCG([]float64{1, 1, 3})
	without := m.IDCG([]float64{1, 1})
	if withTail != without {
		t.Errorf("IDCG beyond window = %v, want %v", withTail, without)
	}
}

func TestNDCGZeroIDCGIsExactlyZero(t *testing.T) {
	// All-zero grades with a zero missing score leave nothing to gain.
	m := newTestMath(3, 0)
	if got := m.NDCG([]float64{0, 0, 0}); got != 0 {
		t.Errorf("NDCG all-zero = %v, want exactly 0", got)
	}
}

func TestNDCGAllZeroGrades(t *testing.T) {
	m := newTestMath(6, 1)
	if got := m.NDCG([]float64{0, 0, 0}); got != 0 {
		t.Errorf("NDCG([0 0 0]) = %v, want 0", got)
	}
}

func TestNDCGPerfectOrderingScoresHigher(t *testing.T) {
	m := newTestMath(4, 1)
	best := m.NDCG([]float64{3, 2, 1, 0})
	worst := m.NDCG([]float64{0, 1, 2, 3})
	if best <= worst {
		t.Errorf("NDCG best ordering %v not greater than worst ordering %v", best, worst)
	}
	if best != 1 {
		t.Errorf("NDCG of ideally ordered full window = %v, want 1", best)
	}
}

func TestNDCGImprovingTopResultNeverHurts(t *testing.T) {
	m := newTestMath(6, 1)
	tests := []struct {
		name          string
		before, after []float64
		wantBefore    float64
		wantAfter     float64
	}{
		{"zero to graded", []float64{0, 3}, []float64{1, 3}, 0.51, 0.583},
		{"low to mid", []float64{1, 3}, []float64{2, 3}, 0.583, 0.702},
		{"tied to leading", []float64{3, 3}, []float64{5, 3}, 0.872, 0.955},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := m.NDCG(tt.before)
			after := m.NDCG(tt.after)
			if before != tt.wantBefore {
				t.Errorf("NDCG(%v) = %v, want %v", tt.before, before, tt.wantBefore)
			}
			if after != tt.wantAfter {
				t.Errorf("NDCG(%v) = %v, want %v", tt.after, after, tt.wantAfter)
			}
			if after < before {
				t.Errorf("raising the top grade dropped NDCG from %v to %v", before, after)
			}
		})
	}
}

func TestNDCGPenalisesHighGradeBelowTop(t *testing.T) {
	// Raising a grade below a weaker leading result makes the shown order
	// worse relative to the ideal one, so the score drops. The ideal list
	// re-sorts while the result list does not.
	m := newTestMath(6, 1)
	if got := m.NDCG([]float64{3, 3}); got != 0.872 {
		t.Errorf("NDCG([3 3]) = %v, want 0.872", got)
	}
	if got := m.NDCG([]float64{3, 5}); got != 0.716 {
		t.Errorf("NDCG([3 5]) = %v, want 0.716", got)
	}
}

func TestNDCGRangeBounds(t *testing.T) {
	m := newTestMath(6, 1)
	for _, grades := range [][]float64{
		{3, 2, 3, 1, 1, 2},
		{0, 0, 1},
		{1},
		{3, 3, 3, 3, 3, 3},
	} {
		got := m.NDCG(grades)
		if got < 0 || got > 1 {
			t.Errorf("NDCG(%v) = %v, out of [0, 1]", grades, got)
		}
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"3", 3},
		{"2.5", 2.5},
		{" 1 ", 1},
		{"0", 0},
		{"", 0},
		{"   ", 0},
		{"abc", 0},
		{"1.2.3", 0},
		{"NaN", 0},
		{"Inf", 0},
		{"-1", -1},
	}
	for _, tt := range tests {
		if got := ParseScore(tt.raw); got != tt.want {
			t.Errorf("ParseScore(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
