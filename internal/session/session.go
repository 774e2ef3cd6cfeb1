// Package session holds the per-process sync state: the tab identifier,
// the update-sequence counters stamped into outbound payloads, and the
// clock and id sources every sync entry point uses. Nothing here is global;
// callers construct a SyncSession and pass it down.
package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventlog/api/internal/meta"
	"eventlog/api/internal/util"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sequencer hands out increasing update sequence numbers per record.
type Sequencer interface {
	NextSequence(ctx context.Context, recordID string) (int64, error)
}

type memorySequencer struct {
	mu   sync.Mutex
	next map[string]int64
}

func (m *memorySequencer) NextSequence(_ context.Context, recordID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next[recordID]++
	return m.next[recordID], nil
}

type Options struct {
	Clock     Clock
	Location  *time.Location
	TabID     string
	Sequencer Sequencer
	// BlockID mints block identifiers from the current instant. Nil uses
	// util.BlockID.
	BlockID func(ms int64) string
}

type SyncSession struct {
	clock    Clock
	loc      *time.Location
	tabID    string
	seq      Sequencer
	blockID  func(ms int64) string
	mu       sync.Mutex
	lastSent map[string]int64
}

func New(opts Options) *SyncSession {
	s := &SyncSession{
		clock:    opts.Clock,
		loc:      opts.Location,
		tabID:    opts.TabID,
		seq:      opts.Sequencer,
		blockID:  opts.BlockID,
		lastSent: make(map[string]int64),
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.tabID == "" {
		s.tabID = uuid.NewString()
	}
	if s.seq == nil {
		s.seq = &memorySequencer{next: make(map[string]int64)}
	}
	if s.blockID == nil {
		s.blockID = util.BlockID
	}
	return s
}

func (s *SyncSession) TabID() string            { return s.tabID }
func (s *SyncSession) Location() *time.Location { return s.loc }
func (s *SyncSession) Now() time.Time           { return s.clock.Now() }

// NowMillis is the session clock in epoch milliseconds.
func (s *SyncSession) NowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

// NewBlockID satisfies normalize.IDSource.
func (s *SyncSession) NewBlockID() string {
	return s.blockID(s.NowMillis())
}

// Payload custom keys.
const (
	CustomTab    = "tab"
	CustomSeq    = "seq"
	CustomSentAt = "sentAt"
)

// Stamp reserves the next update sequence for recordID and returns the
// custom fields to embed in the outbound payload.
func (s *SyncSession) Stamp(ctx context.Context, recordID string) (map[string]any, error) {
	n, err := s.seq.NextSequence(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("next update sequence: %w", err)
	}
	s.mu.Lock()
	s.lastSent[recordID] = n
	s.mu.Unlock()
	return map[string]any{
		CustomTab:    s.tabID,
		CustomSeq:    n,
		CustomSentAt: s.NowMillis(),
	}, nil
}

// LastSequence is the sequence of the latest Stamp for recordID, zero if
// this session never sent it.
func (s *SyncSession) LastSequence(recordID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent[recordID]
}

// IsOwnEcho reports whether an inbound payload is the latest push of this
// session for recordID, coming back unchanged through the transport.
func (s *SyncSession) IsOwnEcho(recordID string, payload *meta.Payload) bool {
	if payload == nil || payload.ID != recordID || payload.Custom == nil {
		return false
	}
	if tab, _ := payload.Custom[CustomTab].(string); tab != s.tabID {
		return false
	}
	seq, ok := asInt64(payload.Custom[CustomSeq])
	return ok && seq > 0 && seq == s.LastSequence(recordID)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
