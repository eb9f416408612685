// Package api exposes the relevancy engine over HTTP: per-query rollup and
// refresh, bulk sweep and refresh, score listings, and snapshots.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	"github.com/opencommercesearch/relevancy-engine/internal/rollup"
	"github.com/opencommercesearch/relevancy-engine/internal/search"
	"github.com/opencommercesearch/relevancy-engine/internal/snapshot"
	"github.com/opencommercesearch/relevancy-engine/internal/store"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
)

// SnapshotStore persists and retrieves captured snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap *model.Snapshot) error
	Latest(ctx context.Context) (*model.Snapshot, error)
	Get(ctx context.Context, id string) (*model.Snapshot, error)
	List(ctx context.Context, limit int) ([]model.SnapshotSummary, error)
}

// Handler serves the engine's HTTP API.
type Handler struct {
	store     store.Store
	coord     *rollup.Coordinator
	refresher *search.Refresher
	builder   *snapshot.Builder
	snapshots SnapshotStore
	logger    *slog.Logger
}

// New wires a Handler. refresher, builder, and snapshots may be nil; their
// routes then answer 503.
func New(st store.Store, coord *rollup.Coordinator, refresher *search.Refresher, builder *snapshot.Builder, snapshots SnapshotStore) *Handler {
	return &Handler{
		store:     st,
		coord:     coord,
		refresher: refresher,
		builder:   builder,
		snapshots: snapshots,
		logger:    slog.Default().With("component", "api-handler"),
	}
}

// Routes registers all API routes on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sites/{site}/cases/{case}/queries/{query}/rollup", h.RollUpQuery)
	mux.HandleFunc("POST /api/v1/sites/{site}/cases/{case}/queries/{query}/refresh", h.RefreshQuery)
	mux.HandleFunc("POST /api/v1/sweep", h.Sweep)
	mux.HandleFunc("POST /api/v1/refresh", h.RefreshAll)
	mux.HandleFunc("GET /api/v1/sites/{site}/scores", h.SiteScores)
	mux.HandleFunc("POST /api/v1/snapshots", h.CreateSnapshot)
	mux.HandleFunc("GET /api/v1/snapshots", h.ListSnapshots)
	mux.HandleFunc("GET /api/v1/snapshots/latest", h.LatestSnapshot)
	mux.HandleFunc("GET /api/v1/snapshots/{id}", h.GetSnapshot)
}

func refFromRequest(r *http.Request) model.QueryRef {
	return model.QueryRef{
		SiteID:  r.PathValue("site"),
		CaseID:  r.PathValue("case"),
		QueryID: r.PathValue("query"),
	}
}

// RollUpQuery recomputes one query's score and its case and site aggregates.
func (h *Handler) RollUpQuery(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	if !ref.Valid() {
		h.writeError(w, http.StatusBadRequest, "site, case, and query are required")
		return
	}
	if err := h.coord.RollUp(r.Context(), ref); err != nil {
		h.writeRollupError(w, ref, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "rolled-up",
		"query":  ref.String(),
	})
}

// RefreshQuery re-fetches one query's results and triggers its rescoring.
func (h *Handler) RefreshQuery(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "refresh is disabled")
		return
	}
	ref := refFromRequest(r)
	if !ref.Valid() {
		h.writeError(w, http.StatusBadRequest, "site, case, and query are required")
		return
	}
	if err := h.refresher.RefreshQuery(r.Context(), ref); err != nil {
		h.writeRollupError(w, ref, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "refreshed",
		"query":  ref.String(),
	})
}

// Sweep recomputes every stored score and reports per-item failures.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.coord.Sweep(r.Context())
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, newReportView(report))
}

// RefreshAll re-fetches every query's results, then recomputes all scores.
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	if h.refresher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "refresh is disabled")
		return
	}
	report, err := h.refresher.RefreshAll(r.Context())
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, newReportView(report))
}

// SiteScores returns a site's aggregate score and its per-query score index.
func (h *Handler) SiteScores(w http.ResponseWriter, r *http.Request) {
	siteID := r.PathValue("site")
	site, err := h.store.Site(r.Context(), siteID)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	entries, err := h.store.ScoresBySite(r.Context(), siteID)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"site":    siteID,
		"score":   site.Score,
		"queries": entries,
	})
}

// CreateSnapshot captures the current hierarchy under the given name and
// persists it.
func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.builder == nil || h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	snap, err := h.builder.Capture(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if err := h.snapshots.Save(r.Context(), snap); err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, model.SnapshotSummary{
		ID:        snap.ID,
		Name:      snap.Name,
		CreatedAt: snap.CreatedAt,
	})
}

// ListSnapshots returns summaries of stored snapshots, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	summaries, err := h.snapshots.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if summaries == nil {
		summaries = []model.SnapshotSummary{}
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// LatestSnapshot returns the most recent snapshot, 404 when none exist.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	snap, err := h.snapshots.Latest(r.Context())
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "no snapshots captured yet")
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// GetSnapshot returns one snapshot by ID.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshots are disabled")
		return
	}
	snap, err := h.snapshots.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

type itemErrorView struct {
	Phase string `json:"phase"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

type reportView struct {
	Queries    int             `json:"queries"`
	Cases      int             `json:"cases"`
	Sites      int             `json:"sites"`
	DurationMs int64           `json:"duration_ms"`
	Partial    bool            `json:"partial"`
	Errors     []itemErrorView `json:"errors"`
}

func newReportView(report *rollup.Report) reportView {
	view := reportView{
		Queries:    report.Queries,
		Cases:      report.Cases,
		Sites:      report.Sites,
		DurationMs: report.Duration.Milliseconds(),
		Partial:    report.Partial(),
		Errors:     []itemErrorView{},
	}
	for _, ie := range report.Errors {
		view.Errors = append(view.Errors, itemErrorView{
			Phase: string(ie.Phase),
			Key:   ie.Key,
			Error: ie.Err.Error(),
		})
	}
	return view
}

func (h *Handler) writeRollupError(w http.ResponseWriter, ref model.QueryRef, err error) {
	status := apperrors.HTTPStatusCode(err)
	body := map[string]string{
		"error": err.Error(),
		"query": ref.String(),
	}
	if stage := rollup.FailedStage(err); stage != "" {
		body["stage"] = string(stage)
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
