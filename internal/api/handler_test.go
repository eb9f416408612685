package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	"github.com/opencommercesearch/relevancy-engine/internal/scoring"
	"github.com/opencommercesearch/relevancy-engine/internal/search"
	"github.com/opencommercesearch/relevancy-engine/internal/snapshot"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	"github.com/opencommercesearch/relevancy-engine/pkg/config"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
)

type stubProvider struct {
	items []model.ResultItem
	err   error
}

func (p *stubProvider) Search(ctx context.Context, site *model.Site, query string) ([]model.ResultItem, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.items, nil
}

type memSnapshotStore struct {
	snaps []*model.Snapshot
}

func (m *memSnapshotStore) Save(ctx context.Context, snap *model.Snapshot) error {
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *memSnapshotStore) Latest(ctx context.Context) (*model.Snapshot, error) {
	if len(m.snaps) == 0 {
		return nil, nil
	}
	return m.snaps[len(m.snaps)-1], nil
}

func (m *memSnapshotStore) Get(ctx context.Context, id string) (*model.Snapshot, error) {
	for _, s := range m.snaps {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("snapshot %s: %w", id, apperrors.ErrNotFound)
}

func (m *memSnapshotStore) List(ctx context.Context, limit int) ([]model.SnapshotSummary, error) {
	var out []model.SnapshotSummary
	for i := len(m.snaps) - 1; i >= 0 && len(out) < limit; i-- {
		s := m.snaps[i]
		out = append(out, model.SnapshotSummary{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt})
	}
	return out, nil
}

func newTestServer(t *testing.T, provider search.Provider) (*store.MemoryStore, *httptest.Server) {
	t.Helper()
	st := store.NewMemoryStore()
	scoringCfg := config.ScoringConfig{ResultLimit: 6, MissingScore: 1, FractionalDigits: 2}
	cfg := &config.Config{Scoring: scoringCfg, Rollup: config.RollupConfig{MaxConcurrent: 4}}
	scorer := scoring.NewQueryScorer(st, scoringCfg, nil)
	coord := rollup.NewCoordinator(st, scorer, cfg, nil)
	refresher := search.NewRefresher(st, provider, coord, nil, 4)
	builder := snapshot.NewBuilder(st, nil)

	h := New(st, coord, refresher, builder, &memSnapshotStore{})
	mux := http.NewServeMux()
	h.Routes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return st, server
}

func seedAPIQuery(st *store.MemoryStore, ref model.QueryRef) {
	st.AddSite(ref.SiteID, &model.Site{Code: ref.SiteID, APIURL: "http://api", Fields: "id,title"})
	st.AddCase(ref.SiteID, ref.CaseID, &model.Case{Name: ref.CaseID})
	st.AddQuery(ref, &model.Query{
		Name:       "boots",
		Results:    []model.ResultItem{{ProductID: "p1", Rank: 0}},
		Judgements: map[string]model.Judgement{"p1": {ProductID: "p1", Score: "3"}},
	})
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRollUpQueryEndpoint(t *testing.T) {
	st, server := newTestServer(t, &stubProvider{})
	ref := model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}
	seedAPIQuery(st, ref)

	resp := postJSON(t, server.URL+"/api/v1/sites/site1/cases/case1/queries/q1/rollup", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	q, err := st.Query(context.Background(), ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if q.Score == 0 {
		t.Error("rollup endpoint did not score the query")
	}
}

func TestRollUpQueryEndpointMissingQuery(t *testing.T) {
	_, server := newTestServer(t, &stubProvider{})
	resp := postJSON(t, server.URL+"/api/v1/sites/nope/cases/nope/queries/nope/rollup", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["stage"] != "score-query" {
		t.Errorf("stage = %q, want score-query", body["stage"])
	}
}

func TestRefreshQueryEndpoint(t *testing.T) {
	provider := &stubProvider{items: []model.ResultItem{
		{ProductID: "fresh1", Rank: 0},
		{ProductID: "fresh2", Rank: 1},
	}}
	st, server := newTestServer(t, provider)
	ref := model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}
	seedAPIQuery(st, ref)

	resp := postJSON(t, server.URL+"/api/v1/sites/site1/cases/case1/queries/q1/refresh", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	q, err := st.Query(context.Background(), ref)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(q.Results) != 2 || q.Results[0].ProductID != "fresh1" {
		t.Errorf("results = %+v, want the fresh list", q.Results)
	}
}

func TestSweepEndpointReportsTotals(t *testing.T) {
	st, server := newTestServer(t, &stubProvider{})
	seedAPIQuery(st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"})
	seedAPIQuery(st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q2"})

	resp := postJSON(t, server.URL+"/api/v1/sweep", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var report struct {
		Queries int  `json:"queries"`
		Cases   int  `json:"cases"`
		Sites   int  `json:"sites"`
		Partial bool `json:"partial"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Queries != 2 || report.Cases != 1 || report.Sites != 1 || report.Partial {
		t.Errorf("report = %+v, want 2/1/1 complete", report)
	}
}

func TestSiteScoresEndpoint(t *testing.T) {
	st, server := newTestServer(t, &stubProvider{})
	ref := model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"}
	seedAPIQuery(st, ref)
	postJSON(t, server.URL+"/api/v1/sites/site1/cases/case1/queries/q1/rollup", nil)

	resp, err := http.Get(server.URL + "/api/v1/sites/site1/scores")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Site    string             `json:"site"`
		Score   float64            `json:"score"`
		Queries []model.ScoreEntry `json:"queries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Site != "site1" || len(body.Queries) != 1 || body.Score == 0 {
		t.Errorf("body = %+v, want site1 with one scored query", body)
	}
}

func TestSnapshotEndpoints(t *testing.T) {
	st, server := newTestServer(t, &stubProvider{})
	seedAPIQuery(st, model.QueryRef{SiteID: "site1", CaseID: "case1", QueryID: "q1"})

	created := postJSON(t, server.URL+"/api/v1/snapshots", map[string]string{"name": "baseline"})
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", created.StatusCode)
	}
	var summary model.SnapshotSummary
	if err := json.NewDecoder(created.Body).Decode(&summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.ID == "" || summary.Name != "baseline" {
		t.Errorf("summary = %+v, want a named snapshot with an ID", summary)
	}

	latest, err := http.Get(server.URL + "/api/v1/snapshots/latest")
	if err != nil {
		t.Fatalf("GET latest: %v", err)
	}
	defer latest.Body.Close()
	if latest.StatusCode != http.StatusOK {
		t.Fatalf("latest status = %d, want 200", latest.StatusCode)
	}
	var snap model.Snapshot
	if err := json.NewDecoder(latest.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ID != summary.ID || snap.Sites["site1"] == nil {
		t.Errorf("latest = %+v, want the captured snapshot", snap.ID)
	}
}

func TestSnapshotCreateRequiresName(t *testing.T) {
	_, server := newTestServer(t, &stubProvider{})
	resp := postJSON(t, server.URL+"/api/v1/snapshots", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSnapshotLatestEmpty(t *testing.T) {
	_, server := newTestServer(t, &stubProvider{})
	resp, err := http.Get(server.URL + "/api/v1/snapshots/latest")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
