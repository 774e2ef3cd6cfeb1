package search

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/store"
)

type fakeIndex struct {
	mu       sync.Mutex
	healthy  bool
	err      error
	results  []Result
	indexed  []Record
	deleted  []string
	searched int
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func (f *fakeIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeIndex) Index(records ...Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, records...)
	return nil
}

func (f *fakeIndex) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) indexedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.indexed)
}

func seededStore(t *testing.T) *store.SQLStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.OpenSQLStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for id, text := range map[string]string{
		"evt-1": "Call the plumber",
		"evt-2": "Plumber arrived late",
		"evt-3": "Buy milk",
	} {
		doc := blockdoc.Document{Blocks: []blockdoc.Block{blockdoc.NewParagraph("b1", text, 1)}}
		if err := s.PutRecord(ctx, id, store.Envelope{Log: blockdoc.NewEventLog(doc, "", 1, 1)}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return s
}

func TestStoreSearchFallback(t *testing.T) {
	svc := NewService(nil, NewStoreSearch(seededStore(t)), nil)

	resp := svc.Search(context.Background(), Query{Text: "plumber"})
	if resp.Backend != "store" {
		t.Fatalf("expected store backend, got %q", resp.Backend)
	}
	if resp.Total != 2 || len(resp.Results) != 2 {
		t.Fatalf("expected 2 hits, got %+v", resp)
	}

	paged := svc.Search(context.Background(), Query{Text: "plumber", Limit: 1, Offset: 1})
	if len(paged.Results) != 1 {
		t.Fatalf("expected one paged hit, got %+v", paged)
	}

	empty := svc.Search(context.Background(), Query{Text: "   "})
	if empty.Results == nil || len(empty.Results) != 0 {
		t.Fatalf("blank query should return an empty, non-nil list: %+v", empty)
	}
}

func TestPrimaryIsPreferredWhenHealthy(t *testing.T) {
	primary := &fakeIndex{healthy: true, results: []Result{{ID: "evt-9", Snippet: "<mark>x</mark>"}}}
	svc := NewService(nil, NewStoreSearch(seededStore(t)), nil)
	svc.primary, svc.indexer = primary, primary

	resp := svc.Search(context.Background(), Query{Text: "plumber"})
	if resp.Backend != "meilisearch" || len(resp.Results) != 1 || resp.Results[0].ID != "evt-9" {
		t.Fatalf("unexpected response %+v", resp)
	}

	primary.err = errors.New("boom")
	resp = svc.Search(context.Background(), Query{Text: "plumber"})
	if resp.Backend != "store" || resp.Total != 2 {
		t.Fatalf("expected fallback after primary error, got %+v", resp)
	}

	primary.err = nil
	primary.healthy = false
	before := primary.searched
	svc.Search(context.Background(), Query{Text: "plumber"})
	if primary.searched != before {
		t.Fatal("unhealthy primary must not be queried")
	}
}

func TestIndexIsFireAndForget(t *testing.T) {
	idx := &fakeIndex{healthy: true}
	svc := NewService(nil, nil, nil)
	svc.indexer = idx

	doc := blockdoc.Document{Blocks: []blockdoc.Block{blockdoc.NewParagraph("b1", "hello", 5)}}
	svc.Index(RecordFor("evt-1", blockdoc.NewEventLog(doc, "", 5, 5)))

	deadline := time.Now().Add(2 * time.Second)
	for idx.indexedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if idx.indexedCount() != 1 {
		t.Fatal("record was not indexed")
	}
	idx.mu.Lock()
	got := idx.indexed[0]
	idx.mu.Unlock()
	if got.ID != "evt-1" || got.PlainText != "hello" || got.UpdatedAt != 5 {
		t.Fatalf("unexpected indexed record %+v", got)
	}

	if err := svc.Reindex([]Record{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if idx.indexedCount() != 3 {
		t.Fatalf("expected 3 indexed records, got %d", idx.indexedCount())
	}

	idx.healthy = false
	svc.Delete("evt-1")
	if len(idx.deleted) != 0 {
		t.Fatal("unhealthy indexer must be skipped")
	}
}

func TestNoBackends(t *testing.T) {
	resp := NewService(nil, nil, nil).Search(context.Background(), Query{Text: "x"})
	if len(resp.Results) != 0 || resp.Results == nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}
