package snapshot

import (
	"context"
	"testing"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
)

func TestCaptureFreezesHierarchy(t *testing.T) {
	st := store.NewMemoryStore()
	ref := model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}
	st.AddSite("site1", &model.Site{Code: "site1", Name: "Site One"})
	st.AddCase("site1", "case1", &model.Case{Name: "case1"})
	st.AddQuery(ref, &model.Query{
		Name:       "boots",
		Judgements: map[string]model.Judgement{"p1": {ProductID: "p1", Score: "3"}},
	})
	if err := st.SetQueryScore(context.Background(), ref, 0.9); err != nil {
		t.Fatalf("SetQueryScore: %v", err)
	}

	b := NewBuilder(st, nil)
	snap, err := b.Capture(context.Background(), "before-ranker-change")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.ID == "" || snap.CreatedAt.IsZero() {
		t.Error("snapshot identity not assigned")
	}
	if snap.Name != "before-ranker-change" {
		t.Errorf("name = %q, want before-ranker-change", snap.Name)
	}
	if got := snap.Sites["site1"].Cases["case1"].Queries["q1"].Score; got != 0.9 {
		t.Errorf("captured query score = %v, want 0.9", got)
	}

	// Later edits to the live store must not reach the captured copy.
	if err := st.SetQueryScore(context.Background(), ref, 0.1); err != nil {
		t.Fatalf("SetQueryScore: %v", err)
	}
	if got := snap.Sites["site1"].Cases["case1"].Queries["q1"].Score; got != 0.9 {
		t.Errorf("snapshot score changed to %v after a live edit", got)
	}
}

func TestCaptureEmptyStore(t *testing.T) {
	b := NewBuilder(store.NewMemoryStore(), nil)
	snap, err := b.Capture(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(snap.Sites) != 0 {
		t.Errorf("sites = %+v, want none", snap.Sites)
	}
}

func TestCapturesAreIndependent(t *testing.T) {
	st := store.NewMemoryStore()
	st.AddQuery(model.QueryRef{SiteID: "s", CaseID: "c", QueryID: "q"}, &model.Query{Name: "boots"})

	b := NewBuilder(st, nil)
	first, err := b.Capture(context.Background(), "first")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	second, err := b.Capture(context.Background(), "second")
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if first.ID == second.ID {
		t.Error("two captures share an ID")
	}

	first.Sites["s"].Cases["c"].Queries["q"].Name = "mutated"
	if second.Sites["s"].Cases["c"].Queries["q"].Name != "boots" {
		t.Error("mutating one capture leaked into another")
	}
}
