package scoring

import (
	"sort"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
)

// Join aligns a sparse judgement map with an ordered result list, producing
// the graded list NDCG operates on. Each result item contributes, in rank
// order, its judgement's parsed score when judged or the missing-score
// constant otherwise. Judgements for products no longer present in the
// results are ignored. Inputs are not mutated.
func Join(results []model.ResultItem, judgements map[string]model.Judgement, missingScore float64) []float64 {
	ordered := make([]model.ResultItem, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	grades := make([]float64, 0, len(ordered))
	for _, item := range ordered {
		if j, ok := judgements[item.ProductID]; ok {
			grades = append(grades, ParseScore(j.Score))
		} else {
			grades = append(grades, missingScore)
		}
	}
	return grades
}
