// Package syncer drives the two sync directions of an EventLog record.
//
// Outbound reads the stored record, stamps it with the session's update
// sequence, encodes the body with its hidden metadata and hands it to a
// Transport. The sent document is kept as the baseline for the next
// inbound. Inbound normalizes whatever came back against that baseline and
// stores the result under optimistic versioning. Every write that changes
// the document fingerprint is committed to the per-record history and
// pushed to the search index.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/gitrepo"
	"eventlog/api/internal/logger"
	"eventlog/api/internal/meta"
	"eventlog/api/internal/normalize"
	"eventlog/api/internal/search"
	"eventlog/api/internal/session"
	"eventlog/api/internal/signature"
	"eventlog/api/internal/store"
)

const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
	DirectionSave     = "save"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrNoTransport    = errors.New("no outbound transport configured")
	ErrEmptyRecordID  = errors.New("record id is required")
)

// Transport carries an outbound body to the other side.
type Transport interface {
	Deliver(ctx context.Context, recordID, subject string, out meta.Outbound) error
}

// BaselineStore keeps the last sent document per record. session.RedisStore
// implements it.
type BaselineStore interface {
	SaveBaseline(ctx context.Context, b session.Baseline, ttl time.Duration) error
	LoadBaseline(ctx context.Context, recordID string) (*session.Baseline, error)
}

// History records document versions. gitrepo.Service implements it.
type History interface {
	Record(recordID string, log blockdoc.EventLog, author, message string, when time.Time) (gitrepo.CommitInfo, bool, error)
}

// Indexer receives every stored record. search.Service implements it.
type Indexer interface {
	Index(rec search.Record)
}

// Recorder observes sync outcomes. metrics.Metrics implements it.
type Recorder interface {
	RecordSync(direction string, err error, duration time.Duration)
}

type Options struct {
	Records    store.RecordStore
	Session    *session.SyncSession
	Normalizer *normalize.Normalizer
	Transport  Transport
	Baselines  BaselineStore
	History    History
	Index      Indexer
	Recorder   Recorder
	Logger     *logger.Logger
	// BaselineTTL of zero uses session.DefaultBaselineTTL.
	BaselineTTL time.Duration
}

type Syncer struct {
	records     store.RecordStore
	session     *session.SyncSession
	normalizer  *normalize.Normalizer
	codec       *meta.Codec
	transport   Transport
	baselines   BaselineStore
	history     History
	index       Indexer
	rec         Recorder
	log         *logger.Logger
	baselineTTL time.Duration
}

func New(opts Options) (*Syncer, error) {
	if opts.Records == nil {
		return nil, errors.New("syncer: record store is required")
	}
	if opts.Session == nil {
		return nil, errors.New("syncer: session is required")
	}
	if opts.Normalizer == nil {
		return nil, errors.New("syncer: normalizer is required")
	}
	s := &Syncer{
		records:     opts.Records,
		session:     opts.Session,
		normalizer:  opts.Normalizer,
		codec:       meta.NewCodec(opts.Session.Location()),
		transport:   opts.Transport,
		baselines:   opts.Baselines,
		history:     opts.History,
		index:       opts.Index,
		rec:         opts.Recorder,
		log:         opts.Logger,
		baselineTTL: opts.BaselineTTL,
	}
	if s.baselines == nil {
		s.baselines = newMemoryBaselines()
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.Component("syncer")
	return s, nil
}

func (s *Syncer) Session() *session.SyncSession {
	return s.session
}

type OutboundResult struct {
	RecordID string              `json:"recordId"`
	Sequence int64               `json:"sequence"`
	Version  int64               `json:"version"`
	Outbound meta.Outbound       `json:"outbound"`
	Commit   *gitrepo.CommitInfo `json:"commit,omitempty"`
}

// Render builds the outbound body for a stored record without sending it
// or reserving a sequence.
func (s *Syncer) Render(ctx context.Context, recordID string) (meta.Outbound, error) {
	env, err := s.load(ctx, recordID)
	if err != nil {
		return meta.Outbound{}, err
	}
	return s.codec.Encode(recordID, env.Log.Document, signatureOf(env.Log), nil)
}

// Outbound sends the stored record through the transport.
func (s *Syncer) Outbound(ctx context.Context, recordID, subject string) (result OutboundResult, err error) {
	started := s.session.Now()
	blocks := 0
	defer func() { s.observe(DirectionOutbound, recordID, blocks, started, err) }()

	if s.transport == nil {
		return OutboundResult{}, ErrNoTransport
	}
	env, err := s.load(ctx, recordID)
	if err != nil {
		return OutboundResult{}, err
	}
	blocks = env.Log.Document.Len()

	custom, err := s.session.Stamp(ctx, recordID)
	if err != nil {
		return OutboundResult{}, err
	}
	out, err := s.codec.Encode(recordID, env.Log.Document, signatureOf(env.Log), custom)
	if err != nil {
		return OutboundResult{}, err
	}
	if err := s.transport.Deliver(ctx, recordID, subject, out); err != nil {
		return OutboundResult{}, fmt.Errorf("deliver outbound: %w", err)
	}

	seq, _ := custom[session.CustomSeq].(int64)
	baseline := session.Baseline{
		RecordID:    recordID,
		Document:    env.Log.Document,
		Fingerprint: env.Log.Fingerprint,
		Sequence:    seq,
		SentAt:      s.session.NowMillis(),
	}
	if err := s.baselines.SaveBaseline(ctx, baseline, s.baselineTTL); err != nil {
		// The body is already sent; the next inbound falls back to the
		// stored document.
		s.log.Warn().Err(err).Str("record_id", recordID).Msg("baseline not saved")
	}

	result = OutboundResult{RecordID: recordID, Sequence: seq, Version: env.Version, Outbound: out}
	result.Commit = s.commit(recordID, env.Log, "outbound", fmt.Sprintf("Outbound sync #%d", seq))
	return result, nil
}

// InboundRequest is one body received from the other side. Fallback
// instants are the remote item's own timestamps, used when the content
// carries none.
type InboundRequest struct {
	RecordID          string `json:"recordId"`
	Body              string `json:"body"`
	FallbackCreatedAt int64  `json:"fallbackCreatedAt,omitempty"`
	FallbackUpdatedAt int64  `json:"fallbackUpdatedAt,omitempty"`
}

const (
	SkipOwnEcho   = "own_echo"
	SkipUnchanged = "unchanged"
)

type InboundResult struct {
	RecordID   string              `json:"recordId"`
	Result     normalize.Result    `json:"result"`
	Version    int64               `json:"version"`
	Skipped    bool                `json:"skipped"`
	SkipReason string              `json:"skipReason,omitempty"`
	Commit     *gitrepo.CommitInfo `json:"commit,omitempty"`
}

// Inbound normalizes a returned body and stores it. A body that is this
// session's own latest push, or that normalizes to the stored document, is
// not written.
func (s *Syncer) Inbound(ctx context.Context, req InboundRequest) (result InboundResult, err error) {
	started := s.session.Now()
	blocks := 0
	defer func() { s.observe(DirectionInbound, req.RecordID, blocks, started, err) }()

	if req.RecordID == "" {
		return InboundResult{}, ErrEmptyRecordID
	}
	env, err := s.records.GetRecord(ctx, req.RecordID)
	if err != nil {
		return InboundResult{}, fmt.Errorf("load record: %w", err)
	}
	baseline := s.baselineFor(ctx, req.RecordID)

	nreq := normalize.Request{
		Input:             normalize.ClassifyString(req.Body),
		FallbackCreatedAt: req.FallbackCreatedAt,
		FallbackUpdatedAt: req.FallbackUpdatedAt,
	}
	switch {
	case baseline != nil:
		prev := baseline.Document
		nreq.Previous = &prev
	case env != nil:
		prev := env.Log.Document
		nreq.Previous = &prev
	}
	if env != nil {
		if nreq.FallbackCreatedAt == 0 {
			nreq.FallbackCreatedAt = env.Log.CreatedAt
		}
		if nreq.FallbackUpdatedAt == 0 {
			nreq.FallbackUpdatedAt = env.Log.UpdatedAt
		}
	}
	res, err := s.normalizer.Normalize(nreq)
	if err != nil {
		return InboundResult{}, err
	}
	res.Log = attribute(res.Log, env, signature.OriginExternal)
	blocks = res.Log.Document.Len()
	result = InboundResult{RecordID: req.RecordID, Result: res}
	if res.HasWarning(normalize.WarnMissingTimestamps) {
		s.log.LogTimestampWarning(req.RecordID, string(res.Shape))
	}

	if env != nil {
		result.Version = env.Version
		switch {
		case s.isOwnEcho(req.RecordID, res, baseline):
			result.Skipped, result.SkipReason = true, SkipOwnEcho
			return result, nil
		case sameLog(env.Log, res.Log):
			result.Skipped, result.SkipReason = true, SkipUnchanged
			return result, nil
		}
	}

	version, err := s.store(ctx, req.RecordID, env, res.Log)
	if err != nil {
		return InboundResult{}, err
	}
	result.Version = version
	result.Commit = s.commit(req.RecordID, res.Log, "inbound", inboundMessage(res))
	return result, nil
}

// SaveRequest writes a locally edited EventLog. Version is the version the
// caller last read, zero to create and store.AnyVersion to overwrite.
// Fallback instants apply to a new record only; an existing record
// supplies its own.
type SaveRequest struct {
	RecordID          string
	Value             any
	Version           int64
	FallbackCreatedAt int64
	FallbackUpdatedAt int64
}

type SaveResult struct {
	RecordID string              `json:"recordId"`
	Result   normalize.Result    `json:"result"`
	Version  int64               `json:"version"`
	Commit   *gitrepo.CommitInfo `json:"commit,omitempty"`
}

// Save normalizes a local value of any supported shape and stores it.
func (s *Syncer) Save(ctx context.Context, req SaveRequest) (result SaveResult, err error) {
	started := s.session.Now()
	blocks := 0
	defer func() { s.observe(DirectionSave, req.RecordID, blocks, started, err) }()

	if req.RecordID == "" {
		return SaveResult{}, ErrEmptyRecordID
	}
	env, err := s.records.GetRecord(ctx, req.RecordID)
	if err != nil {
		return SaveResult{}, fmt.Errorf("load record: %w", err)
	}
	nreq := normalize.Request{
		FallbackCreatedAt: req.FallbackCreatedAt,
		FallbackUpdatedAt: req.FallbackUpdatedAt,
	}
	if env != nil {
		prev := env.Log.Document
		nreq.Previous = &prev
		nreq.FallbackCreatedAt = env.Log.CreatedAt
		nreq.FallbackUpdatedAt = env.Log.UpdatedAt
	}
	res, err := s.normalizer.NormalizeValue(req.Value, nreq)
	if err != nil {
		return SaveResult{}, err
	}
	res.Log = attribute(res.Log, env, signature.OriginLocal)
	blocks = res.Log.Document.Len()

	if env != nil && req.Version != store.AnyVersion && req.Version != env.Version {
		return SaveResult{}, store.ErrVersionConflict
	}
	if env == nil && req.Version > 0 {
		return SaveResult{}, store.ErrVersionConflict
	}
	version, err := s.store(ctx, req.RecordID, env, res.Log)
	if err != nil {
		return SaveResult{}, err
	}
	result = SaveResult{RecordID: req.RecordID, Result: res, Version: version}
	result.Commit = s.commit(req.RecordID, res.Log, "local", "Local edit")
	return result, nil
}

// BatchItem is the outcome for one record of a batch. Error is empty on
// success.
type BatchItem struct {
	RecordID string         `json:"recordId"`
	Result   *InboundResult `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
}

// InboundBatch runs Inbound for every request, in order. A failing record
// does not stop the batch; a cancelled context does.
func (s *Syncer) InboundBatch(ctx context.Context, reqs []InboundRequest) BatchResult {
	out := BatchResult{Items: make([]BatchItem, 0, len(reqs))}
	for _, req := range reqs {
		item := BatchItem{RecordID: req.RecordID}
		if err := ctx.Err(); err != nil {
			item.Error = err.Error()
			out.Failed++
			out.Items = append(out.Items, item)
			continue
		}
		res, err := s.Inbound(ctx, req)
		switch {
		case err != nil:
			item.Error = err.Error()
			out.Failed++
		case res.Skipped:
			item.Result = &res
			out.Skipped++
		default:
			item.Result = &res
			out.Succeeded++
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func (s *Syncer) load(ctx context.Context, recordID string) (*store.Envelope, error) {
	if recordID == "" {
		return nil, ErrEmptyRecordID
	}
	env, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if env == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	}
	return env, nil
}

// baselineFor returns the last sent baseline, or nil when none is kept.
// A cache failure degrades to the stored document.
func (s *Syncer) baselineFor(ctx context.Context, recordID string) *session.Baseline {
	baseline, err := s.baselines.LoadBaseline(ctx, recordID)
	if err != nil {
		s.log.Warn().Err(err).Str("record_id", recordID).Msg("baseline unavailable, using stored document")
		return nil
	}
	return baseline
}

func (s *Syncer) store(ctx context.Context, recordID string, env *store.Envelope, log blockdoc.EventLog) (int64, error) {
	var version int64
	if env != nil {
		version = env.Version
	}
	if err := s.records.PutRecord(ctx, recordID, store.Envelope{ID: recordID, Log: log, Version: version}); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			return 0, fmt.Errorf("store %s at version %d: %w", recordID, version, err)
		}
		return 0, err
	}
	if s.index != nil {
		s.index.Index(search.RecordFor(recordID, log))
	}
	return version + 1, nil
}

func (s *Syncer) commit(recordID string, log blockdoc.EventLog, author, message string) *gitrepo.CommitInfo {
	if s.history == nil {
		return nil
	}
	info, committed, err := s.history.Record(recordID, log, author, message, s.session.Now())
	if err != nil {
		s.log.Warn().Err(err).Str("record_id", recordID).Msg("history commit failed")
		return nil
	}
	if !committed {
		return nil
	}
	return &info
}

func (s *Syncer) observe(direction, recordID string, blocks int, started time.Time, err error) {
	duration := s.session.Now().Sub(started)
	s.log.LogSync(direction, recordID, blocks, duration, err)
	if s.rec != nil {
		s.rec.RecordSync(direction, err, duration)
	}
}

// isOwnEcho reports an inbound body that carries this session's latest
// stamp and still normalizes to the document that was sent. Local edits
// made since the push are kept.
func (s *Syncer) isOwnEcho(recordID string, res normalize.Result, baseline *session.Baseline) bool {
	if baseline == nil || !s.session.IsOwnEcho(recordID, res.Payload) {
		return false
	}
	return res.Log.Fingerprint == baseline.Fingerprint
}

func signatureOf(log blockdoc.EventLog) signature.Meta {
	return signature.Meta{
		CreatorOrigin:  signature.Origin(log.CreatorOrigin),
		CreatedAt:      log.CreatedAt,
		ModifierOrigin: signature.Origin(log.ModifierOrigin),
		UpdatedAt:      log.UpdatedAt,
	}
}

// attribute fills the origins of a normalized log. A stored record keeps
// its creator; editor becomes the modifier when the content changed.
func attribute(log blockdoc.EventLog, env *store.Envelope, editor signature.Origin) blockdoc.EventLog {
	if env == nil {
		if log.CreatorOrigin == "" {
			log.CreatorOrigin = string(editor)
		}
		if log.ModifierOrigin == "" {
			log.ModifierOrigin = log.CreatorOrigin
		}
		return log
	}
	if env.Log.CreatorOrigin != "" {
		log.CreatorOrigin = env.Log.CreatorOrigin
	}
	switch {
	case log.Fingerprint != env.Log.Fingerprint:
		log.ModifierOrigin = string(editor)
	case env.Log.ModifierOrigin != "":
		log.ModifierOrigin = env.Log.ModifierOrigin
	}
	if log.CreatorOrigin == "" {
		log.CreatorOrigin = log.ModifierOrigin
	}
	return log
}

func sameLog(a, b blockdoc.EventLog) bool {
	return a.Fingerprint == b.Fingerprint && a.CreatedAt == b.CreatedAt && a.UpdatedAt == b.UpdatedAt
}

func inboundMessage(res normalize.Result) string {
	if !res.Reconciled {
		return fmt.Sprintf("Inbound sync (%s)", res.Shape)
	}
	sum := res.Summary
	return fmt.Sprintf("Inbound sync (%s): %d matched, %d inserted, %d deleted", res.Shape, sum.Matched(), sum.Insert, sum.Delete)
}

type memoryBaselines struct {
	mu    sync.Mutex
	items map[string]session.Baseline
}

func newMemoryBaselines() *memoryBaselines {
	return &memoryBaselines{items: make(map[string]session.Baseline)}
}

func (m *memoryBaselines) SaveBaseline(_ context.Context, b session.Baseline, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[b.RecordID] = b
	return nil
}

func (m *memoryBaselines) LoadBaseline(_ context.Context, recordID string) (*session.Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[recordID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}
