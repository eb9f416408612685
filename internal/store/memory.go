package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
)

// WriteRecord is one entry of the MemoryStore write log. Tests use the
// monotonic sequence numbers to assert write ordering across rollup stages.
type WriteRecord struct {
	Seq  int
	Path string
	At   time.Time
}

// MemoryStore is an in-memory Store used by tests and local fixtures. Reads
// return copies so callers never alias internal state. Optional error hooks
// inject persistence failures per write kind.
type MemoryStore struct {
	mu     sync.RWMutex
	sites  map[string]*model.Site
	scores map[string]map[string]model.ScoreEntry
	writes []WriteRecord
	seq    int

	QueryScoreErr  func(ref model.QueryRef) error
	CaseScoreErr   func(siteID, caseID string) error
	SiteScoreErr   func(siteID string) error
	QueryResultErr func(ref model.QueryRef) error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:  make(map[string]*model.Site),
		scores: make(map[string]map[string]model.ScoreEntry),
	}
}

// AddSite seeds a site node. Re-seeding an existing site replaces its fields
// but keeps every case seeded before.
func (s *MemoryStore) AddSite(siteID string, site *model.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if site.Cases == nil {
		site.Cases = make(map[string]*model.Case)
	}
	if existing, ok := s.sites[siteID]; ok {
		for id, c := range existing.Cases {
			if _, seeded := site.Cases[id]; !seeded {
				site.Cases[id] = c
			}
		}
	}
	s.sites[siteID] = site
}

// AddCase seeds a case node, creating the site if absent. Re-seeding an
// existing case replaces its fields but keeps every query seeded before.
func (s *MemoryStore) AddCase(siteID, caseID string, c *model.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		site = &model.Site{Code: siteID, Cases: make(map[string]*model.Case)}
		s.sites[siteID] = site
	}
	if c.Queries == nil {
		c.Queries = make(map[string]*model.Query)
	}
	if existing, ok := site.Cases[caseID]; ok {
		for id, q := range existing.Queries {
			if _, seeded := c.Queries[id]; !seeded {
				c.Queries[id] = q
			}
		}
	}
	site.Cases[caseID] = c
}

// AddQuery seeds a query node under an existing case.
func (s *MemoryStore) AddQuery(ref model.QueryRef, q *model.Query) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[ref.SiteID]
	if !ok {
		site = &model.Site{Code: ref.SiteID, Cases: make(map[string]*model.Case)}
		s.sites[ref.SiteID] = site
	}
	c, ok := site.Cases[ref.CaseID]
	if !ok {
		c = &model.Case{Queries: make(map[string]*model.Query)}
		site.Cases[ref.CaseID] = c
	}
	c.Queries[ref.QueryID] = q
}

// Writes returns a copy of the write log.
func (s *MemoryStore) Writes() []WriteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]WriteRecord, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *MemoryStore) record(path string) {
	s.seq++
	s.writes = append(s.writes, WriteRecord{Seq: s.seq, Path: path, At: time.Now()})
}

func (s *MemoryStore) query(ref model.QueryRef) (*model.Query, error) {
	site, ok := s.sites[ref.SiteID]
	if !ok {
		return nil, fmt.Errorf("%w: site %s", apperrors.ErrNotFound, ref.SiteID)
	}
	c, ok := site.Cases[ref.CaseID]
	if !ok {
		return nil, fmt.Errorf("%w: case %s/%s", apperrors.ErrNotFound, ref.SiteID, ref.CaseID)
	}
	q, ok := c.Queries[ref.QueryID]
	if !ok {
		return nil, fmt.Errorf("%w: query %s", apperrors.ErrNotFound, ref)
	}
	return q, nil
}

func (s *MemoryStore) Site(ctx context.Context, siteID string) (*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, fmt.Errorf("%w: site %s", apperrors.ErrNotFound, siteID)
	}
	cp := *site
	cp.Cases = nil
	return &cp, nil
}

func (s *MemoryStore) Sites(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sites))
	for id := range s.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Cases(ctx context.Context, siteID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, fmt.Errorf("%w: site %s", apperrors.ErrNotFound, siteID)
	}
	ids := make([]string, 0, len(site.Cases))
	for id := range site.Cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Queries(ctx context.Context, siteID, caseID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return nil, fmt.Errorf("%w: site %s", apperrors.ErrNotFound, siteID)
	}
	c, ok := site.Cases[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: case %s/%s", apperrors.ErrNotFound, siteID, caseID)
	}
	ids := make([]string, 0, len(c.Queries))
	for id := range c.Queries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Query(ctx context.Context, ref model.QueryRef) (*model.Query, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, err := s.query(ref)
	if err != nil {
		return nil, err
	}
	return copyQuery(q), nil
}

func (s *MemoryStore) QueryRefs(ctx context.Context) ([]model.QueryRef, error) {
	siteIDs, err := s.Sites(ctx)
	if err != nil {
		return nil, err
	}
	var refs []model.QueryRef
	for _, siteID := range siteIDs {
		caseIDs, err := s.Cases(ctx, siteID)
		if err != nil {
			return nil, err
		}
		for _, caseID := range caseIDs {
			queryIDs, err := s.Queries(ctx, siteID, caseID)
			if err != nil {
				return nil, err
			}
			for _, queryID := range queryIDs {
				refs = append(refs, model.QueryRef{SiteID: siteID, CaseID: caseID, QueryID: queryID})
			}
		}
	}
	return refs, nil
}

func (s *MemoryStore) SetQueryResults(ctx context.Context, ref model.QueryRef, items []model.ResultItem) error {
	if s.QueryResultErr != nil {
		if err := s.QueryResultErr(ref); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.query(ref)
	if err != nil {
		return err
	}
	q.Results = make([]model.ResultItem, len(items))
	copy(q.Results, items)
	s.record("results:" + ref.String())
	return nil
}

func (s *MemoryStore) SetQueryScore(ctx context.Context, ref model.QueryRef, score float64) error {
	if s.QueryScoreErr != nil {
		if err := s.QueryScoreErr(ref); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.query(ref)
	if err != nil {
		return err
	}
	q.Score = score
	idx, ok := s.scores[ref.SiteID]
	if !ok {
		idx = make(map[string]model.ScoreEntry)
		s.scores[ref.SiteID] = idx
	}
	idx[ref.CaseID+"_"+ref.QueryID] = model.ScoreEntry{
		SiteID:  ref.SiteID,
		CaseID:  ref.CaseID,
		QueryID: ref.QueryID,
		Val:     score,
	}
	s.record("query-score:" + ref.String())
	return nil
}

func (s *MemoryStore) SetCaseScore(ctx context.Context, siteID, caseID string, score float64) error {
	if s.CaseScoreErr != nil {
		if err := s.CaseScoreErr(siteID, caseID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: site %s", apperrors.ErrNotFound, siteID)
	}
	c, ok := site.Cases[caseID]
	if !ok {
		return fmt.Errorf("%w: case %s/%s", apperrors.ErrNotFound, siteID, caseID)
	}
	c.Score = score
	s.record("case-score:" + siteID + "/" + caseID)
	return nil
}

func (s *MemoryStore) SetSiteScore(ctx context.Context, siteID string, score float64) error {
	if s.SiteScoreErr != nil {
		if err := s.SiteScoreErr(siteID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: site %s", apperrors.ErrNotFound, siteID)
	}
	site.Score = score
	s.record("site-score:" + siteID)
	return nil
}

func (s *MemoryStore) ScoresBySite(ctx context.Context, siteID string) ([]model.ScoreEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.scores[siteID]
	entries := make([]model.ScoreEntry, 0, len(idx))
	for _, e := range idx {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CaseID != entries[j].CaseID {
			return entries[i].CaseID < entries[j].CaseID
		}
		return entries[i].QueryID < entries[j].QueryID
	})
	return entries, nil
}

func (s *MemoryStore) Tree(ctx context.Context) (map[string]*model.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tree := make(map[string]*model.Site, len(s.sites))
	for siteID, site := range s.sites {
		cp := *site
		cp.Cases = make(map[string]*model.Case, len(site.Cases))
		for caseID, c := range site.Cases {
			cc := *c
			cc.Queries = make(map[string]*model.Query, len(c.Queries))
			for queryID, q := range c.Queries {
				cc.Queries[queryID] = copyQuery(q)
			}
			cp.Cases[caseID] = &cc
		}
		tree[siteID] = &cp
	}
	return tree, nil
}

func copyQuery(q *model.Query) *model.Query {
	cp := *q
	if q.Results != nil {
		cp.Results = make([]model.ResultItem, len(q.Results))
		copy(cp.Results, q.Results)
	}
	if q.Judgements != nil {
		cp.Judgements = make(map[string]model.Judgement, len(q.Judgements))
		for k, v := range q.Judgements {
			cp.Judgements[k] = v
		}
	}
	return &cp
}
