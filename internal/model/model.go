// Package model defines the shared domain types of the relevancy engine:
// the site → case → query hierarchy, judgements, search results, and the
// denormalized score index entries.
package model

import (
	"fmt"
	"time"
)

// Judgement is a human-assigned relevance grade for one product within one
// query's context. Score is kept as entered by the reviewer; junk values
// parse as zero at scoring time.
type Judgement struct {
	ProductID string `json:"productId"`
	Score     string `json:"score"`
}

// ResultItem is one entry of the ordered result list produced by a product
// search call. The list is replaced wholesale on each refresh.
type ResultItem struct {
	ProductID string `json:"productId"`
	Rank      int    `json:"rank"`
	Title     string `json:"title,omitempty"`
	Brand     string `json:"brand,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// Query owns its result list, its judgements keyed by product ID, and its
// stored NDCG score.
type Query struct {
	Name       string               `json:"name"`
	Results    []ResultItem         `json:"results,omitempty"`
	Judgements map[string]Judgement `json:"judgements,omitempty"`
	Score      float64              `json:"score"`
}

// Case owns a set of queries; its score is always derived.
type Case struct {
	Name    string            `json:"name"`
	Score   float64           `json:"score"`
	Queries map[string]*Query `json:"queries,omitempty"`
}

// Site owns a set of cases plus the product search API configuration used to
// refresh its queries.
type Site struct {
	Code       string           `json:"code"`
	Name       string           `json:"name"`
	APIURL     string           `json:"apiUrl"`
	ContentURL string           `json:"contentUrl,omitempty"`
	Fields     string           `json:"fields"`
	Score      float64          `json:"score"`
	Cases      map[string]*Case `json:"cases,omitempty"`
}

// QueryRef addresses one query within the hierarchy.
type QueryRef struct {
	SiteID  string `json:"siteId"`
	CaseID  string `json:"caseId"`
	QueryID string `json:"queryId"`
}

// Key returns the flat index key for this query, matching the
// site_case_query convention of the score index.
func (r QueryRef) Key() string {
	return fmt.Sprintf("%s_%s_%s", r.SiteID, r.CaseID, r.QueryID)
}

func (r QueryRef) String() string {
	return fmt.Sprintf("%s/%s/%s", r.SiteID, r.CaseID, r.QueryID)
}

// Valid reports whether all three path components are present.
func (r QueryRef) Valid() bool {
	return r.SiteID != "" && r.CaseID != "" && r.QueryID != ""
}

// ScoreEntry is one record of the denormalized per-site score index that the
// case and site aggregators read. Only scored queries have an entry.
type ScoreEntry struct {
	SiteID  string  `json:"siteId"`
	CaseID  string  `json:"caseId"`
	QueryID string  `json:"queryId"`
	Val     float64 `json:"val"`
}

// Snapshot is an immutable, timestamped deep copy of the scored hierarchy.
// It is never mutated after creation.
type Snapshot struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"createdAt"`
	Sites     map[string]*Site `json:"sites"`
}

// SnapshotSummary is the listing view of a stored snapshot, without the tree.
type SnapshotSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
