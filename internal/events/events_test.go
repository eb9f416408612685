package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	"github.com/opencommercesearch/relevancy-engine/internal/scoring"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
)

func newEventFixture() (*store.MemoryStore, *rollup.Coordinator) {
	st := store.NewMemoryStore()
	scoringCfg := config.ScoringConfig{ResultLimit: 6, MissingScore: 1, FractionalDigits: 2}
	cfg := &config.Config{Scoring: scoringCfg, Rollup: config.RollupConfig{MaxConcurrent: 4}}
	scorer := scoring.NewQueryScorer(st, scoringCfg, nil)
	return st, rollup.NewCoordinator(st, scorer, cfg, nil)
}

func TestNewQueryChanged(t *testing.T) {
	ref := model.QueryRef{SiteID: "s", CaseID: "c", QueryID: "q"}
	event := NewQueryChanged(ref, ReasonJudgementEdited)
	if event.EventID == "" {
		t.Error("event ID not assigned")
	}
	if event.Ref() != ref {
		t.Errorf("Ref() = %+v, want %+v", event.Ref(), ref)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
}

func TestHandleQueryChangedRunsRollup(t *testing.T) {
	st, coord := newEventFixture()
	ref := model.QueryRef{SiteID: "s", CaseID: "c", QueryID: "q"}
	st.AddSite("s", &model.Site{Code: "s"})
	st.AddCase("s", "c", &model.Case{Name: "c"})
	st.AddQuery(ref, &model.Query{
		Name:       "boots",
		Results:    []model.ResultItem{{ProductID: "p1", Rank: 0}},
		Judgements: map[string]model.Judgement{"p1": {ProductID: "p1", Score: "3"}},
	})

	value, err := json.Marshal(NewQueryChanged(ref, ReasonJudgementEdited))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handler := HandleQueryChanged(coord)
	if err := handler(context.Background(), []byte("s"), value); err != nil {
		t.Fatalf("handler: %v", err)
	}

	q, err := st.Query(context.Background(), ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Score == 0 {
		t.Error("handled event did not score the query")
	}
}

func TestHandleQueryChangedDiscardsMalformed(t *testing.T) {
	_, coord := newEventFixture()
	handler := HandleQueryChanged(coord)
	if err := handler(context.Background(), nil, []byte("{not json")); err != nil {
		t.Errorf("malformed event: err = %v, want nil (skip, do not retry)", err)
	}
}

func TestHandleQueryChangedDiscardsIncompleteRef(t *testing.T) {
	_, coord := newEventFixture()
	value, _ := json.Marshal(QueryChanged{SiteID: "s"})
	handler := HandleQueryChanged(coord)
	if err := handler(context.Background(), nil, value); err != nil {
		t.Errorf("incomplete ref: err = %v, want nil (skip, do not retry)", err)
	}
}

func TestHandleSweepRequested(t *testing.T) {
	st, coord := newEventFixture()
	ref := model.QueryRef{SiteID: "s", CaseID: "c", QueryID: "q"}
	st.AddQuery(ref, &model.Query{
		Name:       "boots",
		Results:    []model.ResultItem{{ProductID: "p1", Rank: 0}},
		Judgements: map[string]model.Judgement{"p1": {ProductID: "p1", Score: "2"}},
	})

	value, err := json.Marshal(NewSweepRequested("test"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	handler := HandleSweepRequested(coord)
	if err := handler(context.Background(), nil, value); err != nil {
		t.Fatalf("handler: %v", err)
	}

	q, err := st.Query(context.Background(), ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Score == 0 {
		t.Error("sweep event did not rescore the stored query")
	}
}
