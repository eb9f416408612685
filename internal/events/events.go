// Package events defines the change events that drive score recomputation
// and the Kafka plumbing that carries them. A QueryChanged event marks one
// query whose judgements or results were edited; SweepRequested asks for a
// full recomputation of every stored score.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
)

// Reason describes what kind of edit triggered a QueryChanged event.
type Reason string

const (
	ReasonJudgementEdited  Reason = "judgement-edited"
	ReasonResultsRefreshed Reason = "results-refreshed"
)

// QueryChanged marks a single query whose stored state changed and whose
// score chain must be recomputed.
type QueryChanged struct {
	EventID   string    `json:"event_id"`
	SiteID    string    `json:"site_id"`
	CaseID    string    `json:"case_id"`
	QueryID   string    `json:"query_id"`
	Reason    Reason    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewQueryChanged builds a QueryChanged event for the given query.
func NewQueryChanged(ref model.QueryRef, reason Reason) QueryChanged {
	return QueryChanged{
		EventID:   uuid.New().String(),
		SiteID:    ref.SiteID,
		CaseID:    ref.CaseID,
		QueryID:   ref.QueryID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Ref returns the query reference the event targets.
func (e QueryChanged) Ref() model.QueryRef {
	return model.QueryRef{SiteID: e.SiteID, CaseID: e.CaseID, QueryID: e.QueryID}
}

// SweepRequested asks for a full recomputation of all stored scores.
type SweepRequested struct {
	EventID     string    `json:"event_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewSweepRequested builds a SweepRequested event.
func NewSweepRequested(requestedBy string) SweepRequested {
	return SweepRequested{
		EventID:     uuid.New().String(),
		RequestedBy: requestedBy,
		Timestamp:   time.Now().UTC(),
	}
}
