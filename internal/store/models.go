package store

import (
	"context"
	"errors"
	"time"

	"eventlog/api/internal/blockdoc"
)

var ErrVersionConflict = errors.New("record version conflict")

// AnyVersion passed as Envelope.Version makes PutRecord overwrite
// unconditionally.
const AnyVersion int64 = -1

// Envelope is a stored EventLog together with its row version. On
// PutRecord, Version is the version the caller last read: zero for a record
// it expects to create.
type Envelope struct {
	ID       string            `json:"id"`
	Log      blockdoc.EventLog `json:"eventLog"`
	Version  int64             `json:"version"`
	StoredAt time.Time         `json:"storedAt"`
}

type RecordSummary struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	UpdatedAt   int64     `json:"updatedAt"`
	Version     int64     `json:"version"`
	StoredAt    time.Time `json:"storedAt"`
}

// SearchHit is a plain-text match produced by the SQL search fallback.
type SearchHit struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
}

// RecordStore is the persistence the sync paths consume. GetRecord returns
// nil, nil for an unknown id.
type RecordStore interface {
	GetRecord(ctx context.Context, id string) (*Envelope, error)
	PutRecord(ctx context.Context, id string, env Envelope) error
}
