package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/config"
	"eventlog/api/internal/export"
	"eventlog/api/internal/gitrepo"
	"eventlog/api/internal/normalize"
	"eventlog/api/internal/search"
	"eventlog/api/internal/store"
	"eventlog/api/internal/syncer"
)

type recordStore interface {
	store.RecordStore
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, limit int) ([]store.RecordSummary, error)
	Ping(ctx context.Context) error
}

type historySource interface {
	History(recordID string, limit int) ([]gitrepo.CommitInfo, error)
	SnapshotByHash(recordID, hash string) (gitrepo.Snapshot, error)
}

type searcher interface {
	Search(ctx context.Context, q search.Query) search.Response
	Delete(id string)
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Deps are the collaborators of a Service. History, Search and Export may
// be nil; their routes then answer 503.
type Deps struct {
	Records    recordStore
	Syncer     *syncer.Syncer
	Normalizer *normalize.Normalizer
	History    historySource
	Search     searcher
	Export     exporter
}

type Service struct {
	cfg        config.Config
	records    recordStore
	sync       *syncer.Syncer
	normalizer *normalize.Normalizer
	history    historySource
	search     searcher
	export     exporter
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:        cfg,
		records:    deps.Records,
		sync:       deps.Syncer,
		normalizer: deps.Normalizer,
		history:    deps.History,
		search:     deps.Search,
		export:     deps.Export,
	}
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

func (s *Service) Ping(ctx context.Context) error {
	if s.records == nil {
		return errors.New("record store not configured")
	}
	return s.records.Ping(ctx)
}

type NormalizeInput struct {
	Input             json.RawMessage    `json:"input"`
	FallbackCreatedAt int64              `json:"fallbackCreatedAt"`
	FallbackUpdatedAt int64              `json:"fallbackUpdatedAt"`
	Previous          *blockdoc.Document `json:"previous"`
}

// Normalize runs the normalizer on a detached value. Nothing is stored.
func (s *Service) Normalize(_ context.Context, in NormalizeInput) (normalize.Result, error) {
	raw, err := decodeValue(in.Input)
	if err != nil {
		return normalize.Result{}, err
	}
	return s.normalizer.NormalizeValue(raw, normalize.Request{
		FallbackCreatedAt: in.FallbackCreatedAt,
		FallbackUpdatedAt: in.FallbackUpdatedAt,
		Previous:          in.Previous,
	})
}

func (s *Service) GetEventLog(ctx context.Context, recordID string) (*store.Envelope, error) {
	env, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "EventLog not found", map[string]any{"recordId": recordID})
	}
	return env, nil
}

func (s *Service) ListEventLogs(ctx context.Context, limit int) (map[string]any, error) {
	items, err := s.records.ListRecords(ctx, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"items": items}, nil
}

type PutEventLogInput struct {
	EventLog json.RawMessage `json:"eventLog"`
	// Version is the version last read; absent overwrites.
	Version *int64 `json:"version"`
}

func (s *Service) PutEventLog(ctx context.Context, recordID string, in PutEventLogInput) (syncer.SaveResult, error) {
	raw, err := decodeValue(in.EventLog)
	if err != nil {
		return syncer.SaveResult{}, err
	}
	version := store.AnyVersion
	if in.Version != nil {
		version = *in.Version
	}
	return s.sync.Save(ctx, syncer.SaveRequest{RecordID: recordID, Value: raw, Version: version})
}

func (s *Service) DeleteEventLog(ctx context.Context, recordID string) error {
	if _, err := s.GetEventLog(ctx, recordID); err != nil {
		return err
	}
	if err := s.records.DeleteRecord(ctx, recordID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.Delete(recordID)
	}
	return nil
}

type OutboundInput struct {
	Subject string `json:"subject"`
	// DryRun renders the body without sending it.
	DryRun bool `json:"dryRun"`
}

func (s *Service) Outbound(ctx context.Context, recordID string, in OutboundInput) (any, error) {
	if in.DryRun {
		out, err := s.sync.Render(ctx, recordID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"recordId": recordID, "outbound": out, "sent": false}, nil
	}
	return s.sync.Outbound(ctx, recordID, in.Subject)
}

func (s *Service) Inbound(ctx context.Context, req syncer.InboundRequest) (syncer.InboundResult, error) {
	return s.sync.Inbound(ctx, req)
}

func (s *Service) InboundBatch(ctx context.Context, reqs []syncer.InboundRequest) (syncer.BatchResult, error) {
	if len(reqs) == 0 {
		return syncer.BatchResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "items must not be empty", nil)
	}
	return s.sync.InboundBatch(ctx, reqs), nil
}

func (s *Service) History(_ context.Context, recordID string, limit int) (map[string]any, error) {
	if s.history == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_DISABLED", "Version history is not enabled", nil)
	}
	commits, err := s.history.History(recordID, limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"recordId": recordID, "commits": commits}, nil
}

func (s *Service) Compare(_ context.Context, recordID, from, to string) (map[string]any, error) {
	if s.history == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_DISABLED", "Version history is not enabled", nil)
	}
	before, err := s.history.SnapshotByHash(recordID, from)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", map[string]any{"hash": from})
	}
	after, err := s.history.SnapshotByHash(recordID, to)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", map[string]any{"hash": to})
	}
	return map[string]any{
		"recordId": recordID,
		"from":     from,
		"to":       to,
		"changes":  gitrepo.Diff(before, after),
	}, nil
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_DISABLED", "Export is not enabled", nil)
	}
	return s.export.Export(ctx, req)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_DISABLED", "Search is not enabled", nil)
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "q is required", nil)
	}
	return s.search.Search(ctx, q), nil
}

// decodeValue turns a raw JSON value into the shape the normalizer
// classifies: strings stay strings, objects and arrays stay decoded.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, domainError(http.StatusBadRequest, "INVALID_BODY", fmt.Sprintf("invalid eventlog value: %v", err), nil)
	}
	return value, nil
}
