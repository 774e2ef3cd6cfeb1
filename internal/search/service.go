package search

import (
	"context"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/logger"
)

// Indexer pushes records into an external index.
type Indexer interface {
	Index(records ...Record) error
	Delete(id string) error
	Healthy() bool
}

// Service is the facade that tries the index first and falls back to the
// record store.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	log      *logger.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{fallback: fallback, log: log.Component("search")}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
	}
	return s
}

// RecordFor builds the indexed form of an EventLog.
func RecordFor(id string, log blockdoc.EventLog) Record {
	return Record{
		ID:          id,
		PlainText:   log.PlainText,
		Fingerprint: log.Fingerprint,
		UpdatedAt:   log.UpdatedAt,
	}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back to store search")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("store search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: "store"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "store"}
}

// Index indexes a record (fire-and-forget).
func (s *Service) Index(rec Record) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.Index(rec); err != nil {
			s.log.Warn().Err(err).Str("record_id", rec.ID).Msg("index record")
		}
	}()
}

// Delete removes a record from the index (fire-and-forget).
func (s *Service) Delete(id string) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	go func() {
		if err := s.indexer.Delete(id); err != nil {
			s.log.Warn().Err(err).Str("record_id", id).Msg("delete record")
		}
	}()
}

// Reindex pushes records synchronously; used at startup.
func (s *Service) Reindex(records []Record) error {
	if s.indexer == nil || !s.indexer.Healthy() || len(records) == 0 {
		return nil
	}
	return s.indexer.Index(records...)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
