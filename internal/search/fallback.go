package search

import (
	"context"
	"strings"

	"eventlog/api/internal/store"
)

// PlainTextSearcher is the store capability the fallback needs.
type PlainTextSearcher interface {
	SearchPlainText(ctx context.Context, query string, limit int) ([]store.SearchHit, error)
}

// StoreSearch searches the record store directly: Postgres full text or
// sqlite LIKE, depending on the backend.
type StoreSearch struct {
	source PlainTextSearcher
}

func NewStoreSearch(source PlainTextSearcher) *StoreSearch {
	return &StoreSearch{source: source}
}

// Healthy always returns true; the store is a hard dependency.
func (s *StoreSearch) Healthy() bool {
	return true
}

func (s *StoreSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	hits, err := s.source.SearchPlainText(ctx, q.Text, limit+offset)
	if err != nil {
		return nil, 0, err
	}
	total := len(hits)
	if offset >= len(hits) {
		return nil, total, nil
	}
	hits = hits[offset:]

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{ID: hit.ID, Snippet: hit.Snippet})
	}
	return results, total, nil
}
