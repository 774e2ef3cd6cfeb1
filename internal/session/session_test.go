package session

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"eventlog/api/internal/meta"
)

func fixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

func TestNewBlockIDUsesInjectedSources(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	s := New(Options{
		Clock: fixedClock(now),
		TabID: "tab-1",
		BlockID: func(ms int64) string {
			n++
			return fmt.Sprintf("b-%d-%d", ms, n)
		},
	})

	if got := s.NewBlockID(); got != fmt.Sprintf("b-%d-1", now.UnixMilli()) {
		t.Fatalf("unexpected id %q", got)
	}
	if s.TabID() != "tab-1" {
		t.Fatalf("tab id = %q", s.TabID())
	}
	if s.NowMillis() != now.UnixMilli() {
		t.Fatalf("clock not injected")
	}
}

func TestDefaultsAreFilled(t *testing.T) {
	a, b := New(Options{}), New(Options{})
	if a.TabID() == "" || a.TabID() == b.TabID() {
		t.Fatalf("expected distinct generated tab ids, got %q and %q", a.TabID(), b.TabID())
	}
	if a.Location() != time.Local {
		t.Fatal("expected local location by default")
	}
	if a.NewBlockID() == "" {
		t.Fatal("expected a block id")
	}
}

func TestStampAndEchoDetection(t *testing.T) {
	ctx := context.Background()
	s := New(Options{TabID: "tab-a", Clock: fixedClock(time.UnixMilli(1000))})

	first, err := s.Stamp(ctx, "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Stamp(ctx, "evt-1")
	if err != nil {
		t.Fatal(err)
	}
	if first[CustomSeq].(int64) != 1 || second[CustomSeq].(int64) != 2 {
		t.Fatalf("unexpected sequences %v %v", first, second)
	}

	// custom fields go through JSON on the wire
	roundTrip := func(custom map[string]any) *meta.Payload {
		raw, _ := json.Marshal(custom)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)
		return &meta.Payload{V: meta.Version, ID: "evt-1", Custom: decoded}
	}

	if !s.IsOwnEcho("evt-1", roundTrip(second)) {
		t.Error("latest push should be recognised as own echo")
	}
	if s.IsOwnEcho("evt-1", roundTrip(first)) {
		t.Error("stale push must not count as echo")
	}
	if s.IsOwnEcho("evt-2", roundTrip(second)) {
		t.Error("payload for another record must not count")
	}
	other := New(Options{TabID: "tab-b"})
	if other.IsOwnEcho("evt-1", roundTrip(second)) {
		t.Error("another session must not claim the push")
	}
	if s.IsOwnEcho("evt-1", nil) {
		t.Error("nil payload is never an echo")
	}
}

func TestStampWithRedisSequencer(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	a := New(Options{Sequencer: store})
	b := New(Options{Sequencer: store})
	if _, err := a.Stamp(ctx, "evt"); err != nil {
		t.Fatal(err)
	}
	custom, err := b.Stamp(ctx, "evt")
	if err != nil {
		t.Fatal(err)
	}
	if custom[CustomSeq].(int64) != 2 {
		t.Fatalf("expected shared sequence 2, got %v", custom[CustomSeq])
	}
	if a.LastSequence("evt") != 1 || b.LastSequence("evt") != 2 {
		t.Fatalf("last sequences a=%d b=%d", a.LastSequence("evt"), b.LastSequence("evt"))
	}

	mr.Close()
	if _, err := a.Stamp(ctx, "evt"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
