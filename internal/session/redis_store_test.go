package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"eventlog/api/internal/blockdoc"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not-a-url://"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestSaveAndLoadBaseline(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	doc := blockdoc.Document{Blocks: []blockdoc.Block{blockdoc.NewParagraph("b1", "Buy milk", 1740819600000)}}
	err := store.SaveBaseline(ctx, Baseline{RecordID: "evt-1", Document: doc, Fingerprint: doc.Fingerprint(), Sequence: 4}, time.Hour)
	if err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}

	got, err := store.LoadBaseline(ctx, "evt-1")
	if err != nil {
		t.Fatalf("LoadBaseline failed: %v", err)
	}
	if got == nil || !got.Document.Equal(doc) {
		t.Fatalf("baseline document mismatch: %+v", got)
	}
	if got.Sequence != 4 || got.Fingerprint != doc.Fingerprint() {
		t.Errorf("unexpected baseline metadata: %+v", got)
	}
}

func TestLoadMissingBaseline(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	got, err := store.LoadBaseline(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadBaseline failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil baseline, got %+v", got)
	}
}

func TestBaselineExpires(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.SaveBaseline(ctx, Baseline{RecordID: "evt-2"}, time.Second); err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}
	s.FastForward(2 * time.Second)

	got, err := store.LoadBaseline(ctx, "evt-2")
	if err != nil {
		t.Fatalf("LoadBaseline failed: %v", err)
	}
	if got != nil {
		t.Error("expected baseline to expire")
	}
}

func TestDeleteBaseline(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.SaveBaseline(ctx, Baseline{RecordID: "evt-3"}, 0); err != nil {
		t.Fatalf("SaveBaseline failed: %v", err)
	}
	if err := store.DeleteBaseline(ctx, "evt-3"); err != nil {
		t.Fatalf("DeleteBaseline failed: %v", err)
	}
	if got, _ := store.LoadBaseline(ctx, "evt-3"); got != nil {
		t.Error("expected baseline to be deleted")
	}
	if err := store.DeleteBaseline(ctx, "never-stored"); err != nil {
		t.Errorf("deleting a missing baseline should not error: %v", err)
	}
}

func TestSequencesAreSharedAndIsolated(t *testing.T) {
	s := miniredis.RunT(t)
	first, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	ctx := context.Background()
	for i, store := range []*RedisStore{first, second, first} {
		n, err := store.NextSequence(ctx, "evt-1")
		if err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}
		if n != int64(i+1) {
			t.Errorf("expected sequence %d, got %d", i+1, n)
		}
	}
	n, err := second.NextSequence(ctx, "evt-other")
	if err != nil || n != 1 {
		t.Errorf("expected independent sequence for evt-other, got %d (%v)", n, err)
	}
}
