package rollup

import (
	"context"
	"errors"
	"testing"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
)

var testScoringConfig = config.ScoringConfig{
	ResultLimit:      6,
	MissingScore:     1,
	FractionalDigits: 2,
}

func seedScoredQuery(t *testing.T, st *store.MemoryStore, ref model.QueryRef, score float64) {
	t.Helper()
	st.AddQuery(ref, &model.Query{Name: ref.QueryID})
	if err := st.SetQueryScore(context.Background(), ref, score); err != nil {
		t.Fatalf("SetQueryScore(%s): %v", ref, err)
	}
}

func TestCaseAggregateMean(t *testing.T) {
	st := store.NewMemoryStore()
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}, 0.9)
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q2"}, 0.8)
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q3"}, 1.0)

	agg := NewCaseAggregator(st, testScoringConfig)
	got, err := agg.Aggregate(context.Background(), "site1", "case1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 0.9 {
		t.Errorf("case mean = %v, want 0.9", got)
	}
}

func TestCaseAggregateIgnoresOtherCases(t *testing.T) {
	st := store.NewMemoryStore()
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}, 1.0)
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case2", QueryID: "q2"}, 0.0)

	agg := NewCaseAggregator(st, testScoringConfig)
	got, err := agg.Aggregate(context.Background(), "site1", "case1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 1.0 {
		t.Errorf("case mean = %v, want 1.0 (sibling case must not contribute)", got)
	}
}

func TestCaseAggregateNoQueriesPersistsZero(t *testing.T) {
	st := store.NewMemoryStore()
	st.AddCase("site1", "empty", &model.Case{Name: "empty"})

	agg := NewCaseAggregator(st, testScoringConfig)
	got, err := agg.Aggregate(context.Background(), "site1", "empty")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 0 {
		t.Errorf("empty case mean = %v, want 0", got)
	}
	writes := st.Writes()
	if len(writes) == 0 || writes[len(writes)-1].Path != "case-score:site1/empty" {
		t.Errorf("expected a case-score write for the empty case, got %+v", writes)
	}
}

func TestSiteAggregateFlattensQueries(t *testing.T) {
	st := store.NewMemoryStore()
	// Two queries in one case, one in another. The site mean weighs each
	// query equally, not each case.
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}, 1.0)
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q2"}, 0.0)
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case2", QueryID: "q3"}, 0.0)

	agg := NewSiteAggregator(st, testScoringConfig)
	got, err := agg.Aggregate(context.Background(), "site1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 0.333 {
		t.Errorf("site mean = %v, want 0.333", got)
	}
}

func TestSiteAggregateNoQueriesPersistsZero(t *testing.T) {
	st := store.NewMemoryStore()
	st.AddSite("site1", &model.Site{Code: "site1"})

	agg := NewSiteAggregator(st, testScoringConfig)
	got, err := agg.Aggregate(context.Background(), "site1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 0 {
		t.Errorf("empty site mean = %v, want 0", got)
	}
}

func TestCaseAggregatePersistFailure(t *testing.T) {
	st := store.NewMemoryStore()
	seedScoredQuery(t, st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}, 0.5)
	st.CaseScoreErr = func(siteID, caseID string) error {
		return errors.New("write refused")
	}

	agg := NewCaseAggregator(st, testScoringConfig)
	if _, err := agg.Aggregate(context.Background(), "site1", "case1"); err == nil {
		t.Error("Aggregate with failing store: err = nil, want error")
	}
}
