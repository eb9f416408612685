package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opencommercesearch/relevancy-engine/internal/model"
	apperrors "github.com/opencommercesearch/relevancy-engine/pkg/errors"
	"github.com/opencommercesearch/relevancy-engine/pkg/redis"
)

// RedisStore keeps each tree node as a JSON blob, membership as sets, and the
// score index as one hash per site (field "{case}_{query}"). The per-site
// hash plays the role a secondary index plays in the hierarchical store: the
// aggregators read all of a site's query scores in a single round-trip.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore creates a RedisStore with the given key prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "relevancy"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: slog.Default().With("component", "redis-store"),
	}
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) siteKey(siteID string) string  { return s.key("site", siteID) }
func (s *RedisStore) sitesKey() string              { return s.key("sites") }
func (s *RedisStore) casesKey(siteID string) string { return s.key("cases", siteID) }
func (s *RedisStore) caseKey(siteID, caseID string) string {
	return s.key("case", siteID, caseID)
}
func (s *RedisStore) queriesKey(siteID, caseID string) string {
	return s.key("queries", siteID, caseID)
}
func (s *RedisStore) queryKey(ref model.QueryRef) string {
	return s.key("query", ref.SiteID, ref.CaseID, ref.QueryID)
}
func (s *RedisStore) scoresKey(siteID string) string { return s.key("scores", siteID) }

func (s *RedisStore) getJSON(ctx context.Context, key string, out any) error {
	raw, err := s.client.Get(ctx, key)
	if redis.IsNilError(err) {
		return fmt.Errorf("%w: %s", apperrors.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", apperrors.ErrStore, key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", apperrors.ErrStore, key, err)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", apperrors.ErrStore, key, err)
	}
	if err := s.client.Set(ctx, key, data); err != nil {
		return fmt.Errorf("%w: writing %s: %v", apperrors.ErrStore, key, err)
	}
	return nil
}

func (s *RedisStore) Site(ctx context.Context, siteID string) (*model.Site, error) {
	var site model.Site
	if err := s.getJSON(ctx, s.siteKey(siteID), &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *RedisStore) Sites(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.sitesKey())
	if err != nil {
		return nil, fmt.Errorf("%w: listing sites: %v", apperrors.ErrStore, err)
	}
	return ids, nil
}

func (s *RedisStore) Cases(ctx context.Context, siteID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.casesKey(siteID))
	if err != nil {
		return nil, fmt.Errorf("%w: listing cases of %s: %v", apperrors.ErrStore, siteID, err)
	}
	return ids, nil
}

func (s *RedisStore) Queries(ctx context.Context, siteID, caseID string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.queriesKey(siteID, caseID))
	if err != nil {
		return nil, fmt.Errorf("%w: listing queries of %s/%s: %v", apperrors.ErrStore, siteID, caseID, err)
	}
	return ids, nil
}

func (s *RedisStore) Query(ctx context.Context, ref model.QueryRef) (*model.Query, error) {
	var q model.Query
	if err := s.getJSON(ctx, s.queryKey(ref), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *RedisStore) QueryRefs(ctx context.Context) ([]model.QueryRef, error) {
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

func (s *RedisStore) SetQueryResults(ctx context.Context, ref model.QueryRef, items []model.ResultItem) error {
	q, err := s.Query(ctx, ref)
	if err != nil {
		return err
	}
	q.Results = items
	return s.setJSON(ctx, s.queryKey(ref), q)
}

func (s *RedisStore) SetQueryScore(ctx context.Context, ref model.QueryRef, score float64) error {
	q, err := s.Query(ctx, ref)
	if err != nil {
		return err
	}
	q.Score = score
	if err := s.setJSON(ctx, s.queryKey(ref), q); err != nil {
		return err
	}

	entry := model.ScoreEntry{SiteID: ref.SiteID, CaseID: ref.CaseID, QueryID: ref.QueryID, Val: score}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding score entry %s: %v", apperrors.ErrStore, ref, err)
	}
	field := ref.CaseID + "_" + ref.QueryID
	if err := s.client.HSet(ctx, s.scoresKey(ref.SiteID), field, data); err != nil {
		return fmt.Errorf("%w: indexing score of %s: %v", apperrors.ErrStore, ref, err)
	}
	return nil
}

func (s *RedisStore) SetCaseScore(ctx context.Context, siteID, caseID string, score float64) error {
	var c model.Case
	key := s.caseKey(siteID, caseID)
	if err := s.getJSON(ctx, key, &c); err != nil {
		return err
	}
	c.Score = score
	return s.setJSON(ctx, key, &c)
}

func (s *RedisStore) SetSiteScore(ctx context.Context, siteID string, score float64) error {
	site, err := s.Site(ctx, siteID)
	if err != nil {
		return err
	}
	site.Score = score
	return s.setJSON(ctx, s.siteKey(siteID), site)
}

func (s *RedisStore) ScoresBySite(ctx context.Context, siteID string) ([]model.ScoreEntry, error) {
	fields, err := s.client.HGetAll(ctx, s.scoresKey(siteID))
	if err != nil {
		return nil, fmt.Errorf("%w: reading score index of %s: %v", apperrors.ErrStore, siteID, err)
	}
	entries := make([]model.ScoreEntry, 0, len(fields))
	for field, raw := range fields {
		var entry model.ScoreEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.logger.Warn("skipping corrupt score index entry", "site", siteID, "field", field, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Tree(ctx context.Context) (map[string]*model.Site, error) {
	siteIDs, err := s.Sites(ctx)
	if err != nil {
		return nil, err
	}
	tree := make(map[string]*model.Site, len(siteIDs))
	for _, siteID := range siteIDs {
		site, err := s.Site(ctx, siteID)
		if err != nil {
			return nil, err
		}
		site.Cases = make(map[string]*model.Case)
		caseIDs, err := s.Cases(ctx, siteID)
		if err != nil {
			return nil, err
		}
		for _, caseID := range caseIDs {
			var c model.Case
			if err := s.getJSON(ctx, s.caseKey(siteID, caseID), &c); err != nil {
				return nil, err
			}
			c.Queries = make(map[string]*model.Query)
			queryIDs, err := s.Queries(ctx, siteID, caseID)
			if err != nil {
				return nil, err
			}
			for _, queryID := range queryIDs {
				q, err := s.Query(ctx, model.QueryRef{SiteID: siteID, CaseID: caseID, QueryID: queryID})
				if err != nil {
					return nil, err
				}
				c.Queries[queryID] = q
			}
			site.Cases[caseID] = &c
		}
		tree[siteID] = site
	}
	return tree, nil
}

// Seeding helpers, used by fixtures and the initial data load. The CRUD
// surface of the curation UI lives outside this service.

// PutSite registers a site node and its membership entry.
func (s *RedisStore) PutSite(ctx context.Context, siteID string, site *model.Site) error {
	if err := s.setJSON(ctx, s.siteKey(siteID), site); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.sitesKey(), siteID); err != nil {
		return fmt.Errorf("%w: registering site %s: %v", apperrors.ErrStore, siteID, err)
	}
	return nil
}

// PutCase registers a case node under a site.
func (s *RedisStore) PutCase(ctx context.Context, siteID, caseID string, c *model.Case) error {
	if err := s.setJSON(ctx, s.caseKey(siteID, caseID), c); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.casesKey(siteID), caseID); err != nil {
		return fmt.Errorf("%w: registering case %s/%s: %v", apperrors.ErrStore, siteID, caseID, err)
	}
	return nil
}

// PutQuery registers a query node under a case.
func (s *RedisStore) PutQuery(ctx context.Context, ref model.QueryRef, q *model.Query) error {
	if err := s.setJSON(ctx, s.queryKey(ref), q); err != nil {
		return err
	}
	if err := s.client.SAdd(ctx, s.queriesKey(ref.SiteID, ref.CaseID), ref.QueryID); err != nil {
		return fmt.Errorf("%w: registering query %s: %v", apperrors.ErrStore, ref, err)
	}
	return nil
}
