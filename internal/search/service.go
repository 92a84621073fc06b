package search

import (
	"context"
	"log"
	"sort"
	"strings"
)

// KeywordLookup maps one keyword word to the content ids carrying it and
// their scores.
type KeywordLookup func(ctx context.Context, word string) (map[int64]int, error)

// Service is the facade that tries Meilisearch first and falls back to PG
// FTS, then boosts hits whose registered keywords match the query.
type Service struct {
	meili    *Meili
	pgfts    *PgFTS
	keywords KeywordLookup
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; keywords may be nil to disable boosting.
func NewService(meili *Meili, pgfts *PgFTS, keywords KeywordLookup) *Service {
	return &Service{meili: meili, pgfts: pgfts, keywords: keywords}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	var results []Result
	var total int

	if s.meili != nil && s.meili.Healthy() {
		hits, hitTotal, err := s.meili.Search(q)
		if err == nil {
			results, total = hits, hitTotal
		} else {
			log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
		}
	}
	if results == nil {
		hits, hitTotal, err := s.pgfts.Search(q)
		if err != nil {
			log.Printf("search: pgfts error: %v", err)
			return Response{Results: []Result{}, Total: 0, Query: q.Text}
		}
		results, total = hits, hitTotal
	}
	if results == nil {
		results = []Result{}
	}

	s.boost(ctx, q.Text, results)
	return Response{Results: results, Total: total, Query: q.Text}
}

// boost lifts hits whose content carries a keyword from the query. A
// keyword score of 100 doubles the engine score.
func (s *Service) boost(ctx context.Context, text string, results []Result) {
	if s.keywords == nil || len(results) == 0 {
		return
	}
	boosts := make(map[int64]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		hits, err := s.keywords(ctx, word)
		if err != nil {
			log.Printf("search: keyword lookup %q: %v", word, err)
			continue
		}
		for id, score := range hits {
			if score > boosts[id] {
				boosts[id] = score
			}
		}
	}
	if len(boosts) == 0 {
		return
	}
	for i := range results {
		if score, ok := boosts[results[i].ID]; ok {
			results[i].Score *= 1 + float64(score)/100
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// IndexContent pushes one record to Meilisearch, fire and forget.
func (s *Service) IndexContent(record ContentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexContent(record); err != nil {
			log.Printf("search: index content %d: %v", record.ID, err)
		}
	}()
}

// DeleteContent removes a record from the index, fire and forget.
func (s *Service) DeleteContent(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteContent(id); err != nil {
			log.Printf("search: delete content %d: %v", id, err)
		}
	}()
}

// ReindexAll pushes every record to Meilisearch in one call, used at
// bootstrap when the index is empty.
func (s *Service) ReindexAll(records []ContentRecord) {
	if s.meili == nil || !s.meili.Healthy() || len(records) == 0 {
		return
	}
	if err := s.meili.IndexContents(records); err != nil {
		log.Printf("search: reindex contents: %v", err)
	}
}
