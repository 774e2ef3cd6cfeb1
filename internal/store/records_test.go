package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventlog/api/internal/blockdoc"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "eventlog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testLog(text string, at int64) blockdoc.EventLog {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{blockdoc.NewParagraph("b1", text, at)}}
	return blockdoc.NewEventLog(doc, "<p>"+text+"</p>", at, at)
}

func TestGetMissingRecord(t *testing.T) {
	s := openTestStore(t)
	env, err := s.GetRecord(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if env != nil {
		t.Fatalf("expected nil envelope, got %+v", env)
	}
}

func TestPutAndGetRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = func() time.Time { return time.UnixMilli(1740819600000) }

	log := testLog("Buy milk", 1740819000000)
	if err := s.PutRecord(ctx, "evt-1", Envelope{Log: log}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	env, err := s.GetRecord(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if env == nil {
		t.Fatal("expected stored record")
	}
	if env.Version != 1 {
		t.Fatalf("expected version 1, got %d", env.Version)
	}
	if !env.Log.Document.Equal(log.Document) {
		t.Fatalf("document mismatch: %+v", env.Log.Document)
	}
	if env.Log.PlainText != "Buy milk" || env.Log.Fingerprint != log.Fingerprint || env.Log.CreatedAt != log.CreatedAt {
		t.Fatalf("unexpected log fields: %+v", env.Log)
	}
	if env.StoredAt.UnixMilli() != 1740819600000 {
		t.Fatalf("stored at = %v", env.StoredAt)
	}
}

func TestPutRecordKeepsOrigins(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	log := testLog("Agenda", 1740819000000)
	log.CreatorOrigin = "external"
	log.ModifierOrigin = "external"
	if err := s.PutRecord(ctx, "evt-o", Envelope{Log: log}); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	log.ModifierOrigin = "local"
	if err := s.PutRecord(ctx, "evt-o", Envelope{Log: log, Version: 1}); err != nil {
		t.Fatalf("PutRecord update: %v", err)
	}

	env, err := s.GetRecord(ctx, "evt-o")
	if err != nil || env == nil {
		t.Fatalf("GetRecord: %v %v", env, err)
	}
	if env.Log.CreatorOrigin != "external" || env.Log.ModifierOrigin != "local" {
		t.Fatalf("origins = %q/%q", env.Log.CreatorOrigin, env.Log.ModifierOrigin)
	}
}

func TestPutRecordVersioning(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.PutRecord(ctx, "evt", Envelope{Log: testLog("one", 1)}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.PutRecord(ctx, "evt", Envelope{Log: testLog("dup", 1)}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}
	if err := s.PutRecord(ctx, "evt", Envelope{Log: testLog("two", 2), Version: 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.PutRecord(ctx, "evt", Envelope{Log: testLog("stale", 3), Version: 1}); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected conflict on stale update, got %v", err)
	}
	if err := s.PutRecord(ctx, "evt", Envelope{Log: testLog("forced", 4), Version: AnyVersion}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.PutRecord(ctx, "other", Envelope{Log: testLog("fresh", 5), Version: AnyVersion}); err != nil {
		t.Fatalf("upsert new: %v", err)
	}

	env, _ := s.GetRecord(ctx, "evt")
	if env.Version != 3 || env.Log.PlainText != "forced" {
		t.Fatalf("unexpected record %+v", env)
	}
	fresh, _ := s.GetRecord(ctx, "other")
	if fresh.Version != 1 {
		t.Fatalf("upserted record should start at version 1, got %d", fresh.Version)
	}
}

func TestPutRecordRejectsBadInput(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.PutRecord(ctx, " ", Envelope{}); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := s.PutRecord(ctx, "x", Envelope{Version: -7}); err == nil {
		t.Fatal("expected error for negative version")
	}
}

func TestListAndDeleteRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	clock := int64(1000)
	s.now = func() time.Time { clock += 1000; return time.UnixMilli(clock) }

	for _, id := range []string{"a", "b", "c"} {
		if err := s.PutRecord(ctx, id, Envelope{Log: testLog(id, 1)}); err != nil {
			t.Fatalf("PutRecord(%s): %v", id, err)
		}
	}

	items, err := s.ListRecords(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(items) != 2 || items[0].ID != "c" || items[1].ID != "b" {
		t.Fatalf("unexpected listing %+v", items)
	}

	if err := s.DeleteRecord(ctx, "c"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if env, _ := s.GetRecord(ctx, "c"); env != nil {
		t.Fatal("record should be gone")
	}
}

func TestSearchPlainTextSQLite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.PutRecord(ctx, "a", Envelope{Log: testLog("Call the plumber about the 100% leak", 1)})
	_ = s.PutRecord(ctx, "b", Envelope{Log: testLog("Buy milk", 1)})

	hits, err := s.SearchPlainText(ctx, "PLUMBER", 10)
	if err != nil {
		t.Fatalf("SearchPlainText: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("unexpected hits %+v", hits)
	}

	hits, _ = s.SearchPlainText(ctx, "0%", 10)
	if len(hits) != 1 {
		t.Fatalf("percent must be matched literally, got %+v", hits)
	}
	hits, _ = s.SearchPlainText(ctx, "  ", 10)
	if len(hits) != 0 {
		t.Fatalf("blank query should match nothing, got %+v", hits)
	}
}

func TestSnippet(t *testing.T) {
	text := strings.Repeat("a", 100) + "needle" + strings.Repeat("b", 100)
	got := Snippet(text, "NEEDLE", 40)
	if len([]rune(got)) != 40 || !strings.Contains(got, "needle") {
		t.Fatalf("unexpected snippet %q", got)
	}
	if Snippet("short", "x", 40) != "short" {
		t.Fatal("short text should be returned whole")
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT 1 WHERE a = $1 AND b = $12`
	if got := rebind(DialectSQLite, q); got != `SELECT 1 WHERE a = ?1 AND b = ?12` {
		t.Fatalf("sqlite rebind = %q", got)
	}
	if got := rebind(DialectPostgres, q); got != q {
		t.Fatalf("postgres query must pass through, got %q", got)
	}
}

func TestOpenUnknownScheme(t *testing.T) {
	if _, _, err := Open(context.Background(), "mysql://localhost/x"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sqlite://./data/x.db", "file:./data/x.db?_busy_timeout=5000&_journal_mode=WAL"},
		{"sqlite3:///tmp/x.db", "file:/tmp/x.db?_busy_timeout=5000&_journal_mode=WAL"},
		{"file:x.db?mode=memory", "file:x.db?mode=memory"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := sqliteDSN(tc.in); got != tc.want {
				t.Fatalf("sqliteDSN(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
