// Package normalize turns any supported EventLog representation into the
// canonical form: a compacted block document with resolved record-level
// timestamps.
//
// Inputs are classified once into a closed set of shapes (see Input) and
// dispatched from Normalize. Unrecoverable parse failures degrade to the
// next lower-fidelity reading: structured, then HTML, then plain text.
// A document with no timestamp source at all is returned with a
// missing_timestamps warning rather than a substituted clock reading.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/compact"
	"eventlog/api/internal/htmlbridge"
	"eventlog/api/internal/meta"
	"eventlog/api/internal/reconcile"
	"eventlog/api/internal/signature"
	"eventlog/api/internal/timestamps"
	"eventlog/api/internal/util"
)

type WarningCode string

const (
	WarnMissingTimestamps WarningCode = "missing_timestamps"
	WarnMetaDecodeFailed  WarningCode = "meta_decode_failed"
	WarnLegacyMigrated    WarningCode = "legacy_migrated"
	WarnReparsedInline    WarningCode = "reparsed_inline_timestamps"
)

type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// IDSource mints block identifiers.
type IDSource interface {
	NewBlockID() string
}

type randomIDs struct{}

func (randomIDs) NewBlockID() string { return util.NewID("block") }

// Recorder receives outcome counts. The metrics package implements it.
type Recorder interface {
	ObserveInput(shape Shape)
	ObserveDecisions(summary reconcile.Summary)
	ObserveWarning(code WarningCode)
}

type nopRecorder struct{}

func (nopRecorder) ObserveInput(Shape)                 {}
func (nopRecorder) ObserveDecisions(reconcile.Summary) {}
func (nopRecorder) ObserveWarning(WarningCode)         {}

type Config struct {
	Location       *time.Location
	MinGap         time.Duration
	FuzzyThreshold float64
}

type Option func(*Normalizer)

func WithLogger(log zerolog.Logger) Option {
	return func(n *Normalizer) { n.log = log }
}

func WithRecorder(rec Recorder) Option {
	return func(n *Normalizer) {
		if rec != nil {
			n.rec = rec
		}
	}
}

type Normalizer struct {
	cfg  Config
	ids  IDSource
	log  zerolog.Logger
	rec  Recorder
	meta *meta.Codec
}

// New returns a normalizer. A nil ids source falls back to random ids.
func New(cfg Config, ids IDSource, opts ...Option) *Normalizer {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MinGap <= 0 {
		cfg.MinGap = compact.DefaultMinGap
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = reconcile.DefaultThreshold
	}
	if ids == nil {
		ids = randomIDs{}
	}
	n := &Normalizer{
		cfg:  cfg,
		ids:  ids,
		log:  zerolog.Nop(),
		rec:  nopRecorder{},
		meta: meta.NewCodec(cfg.Location),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Config() Config {
	return n.cfg
}

// Request is one normalization. Fallback instants come from the caller's
// own record (for example the event's creation time) and are used only when
// the content carries none. Previous is the last known document and serves
// as the reconciliation baseline when inbound HTML has lost its payload.
type Request struct {
	Input             Input
	FallbackCreatedAt int64
	FallbackUpdatedAt int64
	Previous          *blockdoc.Document
}

type Result struct {
	Log        blockdoc.EventLog     `json:"eventLog"`
	Shape      Shape                 `json:"shape"`
	Warnings   []Warning             `json:"warnings,omitempty"`
	Reconciled bool                  `json:"reconciled"`
	Summary    reconcile.Summary     `json:"summary"`
	Decisions  []reconcile.Decision  `json:"-"`
	Signature  signature.Meta        `json:"-"`
	Payload    *meta.Payload         `json:"-"`
	Resolution timestamps.Resolution `json:"-"`
}

func (r Result) HasWarning(code WarningCode) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// run is the working state of one Normalize call.
type run struct {
	req        Request
	shape      Shape
	doc        blockdoc.Document
	candidates []timestamps.Candidate
	sig        signature.Meta
	warnings   []Warning
	payload    *meta.Payload
	decisions  []reconcile.Decision
	reconciled bool
	envelopeAt int64
	origins    [2]signature.Origin
}

func (r *run) warn(code WarningCode, format string, args ...any) {
	r.warnings = append(r.warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...)})
}

func (r *run) addSignature(m signature.Meta) {
	if m.CreatedAt <= 0 {
		return
	}
	if r.sig.CreatedAt == 0 {
		r.sig = m.Normalized()
	}
	r.candidates = append(r.candidates, timestamps.Candidate{
		Source:    timestamps.SourceSignature,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	})
}

func (r *run) addEnvelope(created, updated int64) {
	if created <= 0 && updated <= 0 {
		return
	}
	if r.envelopeAt == 0 {
		r.envelopeAt = created
	}
	r.candidates = append(r.candidates, timestamps.Candidate{
		Source:    timestamps.SourceEnvelope,
		CreatedAt: created,
		UpdatedAt: updated,
	})
}

// NormalizeValue classifies raw and normalizes it.
func (n *Normalizer) NormalizeValue(raw any, req Request) (Result, error) {
	in, err := Classify(raw)
	if err != nil {
		n.log.Error().Err(err).Msg("unsupported eventlog input")
		return Result{}, err
	}
	req.Input = in
	return n.Normalize(req)
}

// Normalize dispatches on the input shape and returns the canonical EventLog.
func (n *Normalizer) Normalize(req Request) (Result, error) {
	r := &run{req: req, shape: ShapeOf(req.Input)}
	switch in := req.Input.(type) {
	case nil, Empty:
	case Canonical:
		n.fromCanonical(r, in.Log)
	case StructuredText:
		n.fromStructured(r, in.JSON)
	case HTML:
		n.fromHTML(r, in.Body)
	case PlainText:
		n.fromPlainText(r, in.Text)
	default:
		err := fmt.Errorf("%w: %T", ErrUnsupportedInput, req.Input)
		n.log.Error().Err(err).Msg("unsupported eventlog input")
		return Result{}, err
	}
	n.rec.ObserveInput(r.shape)
	return n.finish(r), nil
}

func (n *Normalizer) fromCanonical(r *run, log blockdoc.EventLog) {
	r.doc = log.Document.Clone()
	r.addEnvelope(log.CreatedAt, log.UpdatedAt)
	r.origins = [2]signature.Origin{signature.Origin(log.CreatorOrigin), signature.Origin(log.ModifierOrigin)}
	n.upgradeInlineTimestamps(r)
}

// upgradeInlineTimestamps re-parses an untimed document whose paragraphs
// still begin with written-out timestamps.
func (n *Normalizer) upgradeInlineTimestamps(r *run) {
	if r.doc.HasBlockTimestamps() {
		return
	}
	text := r.doc.PlainText()
	if !timestamps.HasLeadingTimestamps(text) {
		return
	}
	previous := r.doc
	r.doc = carryIDs(parseTimestampedText(text, n.cfg.Location, r.req.FallbackCreatedAt), &previous)
	r.warn(WarnReparsedInline, "re-parsed %d paragraphs with inline timestamps", previous.Len())
}

func (n *Normalizer) fromStructured(r *run, raw string) {
	parsed, ok := parseStructured(raw, n.cfg.Location)
	if !ok {
		n.log.Debug().Str("shape", string(r.shape)).Msg("structured input did not parse, degrading")
		if looksLikeHTML(raw) {
			n.fromHTML(r, raw)
			return
		}
		n.fromPlainText(r, raw)
		return
	}
	r.doc = parsed.doc
	r.addEnvelope(parsed.envelope[0], parsed.envelope[1])
	if parsed.migrated {
		r.warn(WarnLegacyMigrated, "migrated timestamp-divider nodes to block timestamps")
	}
	n.upgradeInlineTimestamps(r)
}

func (n *Normalizer) fromHTML(r *run, body string) {
	visible := meta.StripContainer(body)
	text := htmlbridge.ExtractText(visible)
	if ex := timestamps.FromSignature(text, n.cfg.Location); ex.Found {
		r.addSignature(ex.Meta())
	}
	if timestamps.HasLeadingTimestamps(text) {
		r.doc = carryIDs(parseTimestampedText(text, n.cfg.Location, r.req.FallbackCreatedAt), r.req.Previous)
		return
	}

	payload, err := meta.DecodeDetailed(body)
	switch {
	case err == nil:
		r.payload = payload
		if sig, ok := n.meta.SignatureMeta(payload); ok {
			r.addSignature(sig)
		}
	case errors.Is(err, meta.ErrNoContainer):
	default:
		r.warn(WarnMetaDecodeFailed, "%v", err)
		n.log.Warn().Err(err).Str("event", string(WarnMetaDecodeFailed)).Msg("meta payload ignored")
	}

	clean := htmlbridge.StripSignatureElements(htmlbridge.Sanitize(visible))
	parsed := compact.StripSignatureBlocks(compact.DropEmptyBlocks(htmlbridge.FromHTML(clean)))

	var entries []reconcile.Entry
	switch {
	case r.payload != nil:
		entries = r.payload.Entries()
	case r.req.Previous != nil:
		entries = reconcile.EntriesFor(*r.req.Previous)
	default:
		r.doc = parsed
		return
	}
	hints := make([]blockdoc.Hint, len(parsed.Blocks))
	for i, block := range parsed.Blocks {
		hints[i] = blockdoc.HintOf(block.Text())
	}
	matcher := reconcile.NewMatcher(n.cfg.FuzzyThreshold, n.ids.NewBlockID)
	r.decisions = matcher.Match(hints, entries)
	r.doc = reconcile.Apply(parsed.Blocks, entries, r.decisions, r.req.FallbackUpdatedAt)
	r.reconciled = true
}

func (n *Normalizer) fromPlainText(r *run, text string) {
	if ex := timestamps.FromSignature(text, n.cfg.Location); ex.Found {
		r.addSignature(ex.Meta())
	}
	if timestamps.HasLeadingTimestamps(text) {
		r.doc = parseTimestampedText(text, n.cfg.Location, r.req.FallbackCreatedAt)
	} else {
		r.doc = plainDocument(text)
	}
	r.doc = carryIDs(r.doc, r.req.Previous)
}

// fallbackCreatedAt is the instant stamped on the first block of a
// document with no block timestamps.
func (r *run) fallbackCreatedAt() int64 {
	switch {
	case r.req.FallbackCreatedAt > 0:
		return r.req.FallbackCreatedAt
	case r.sig.CreatedAt > 0:
		return r.sig.CreatedAt
	default:
		return r.envelopeAt
	}
}

// originPair prefers the parsed signature's origins over the envelope's.
func (r *run) originPair() (signature.Origin, signature.Origin) {
	if r.sig.CreatedAt > 0 {
		return r.sig.CreatorOrigin, r.sig.ModifierOrigin
	}
	return r.origins[0], r.origins[1]
}

func (n *Normalizer) finish(r *run) Result {
	doc := compact.Run(r.doc, compact.Options{
		MinGap:            n.cfg.MinGap,
		FallbackCreatedAt: r.fallbackCreatedAt(),
		NewID:             n.ids.NewBlockID,
	})

	earliest, latest := doc.TimestampBounds()
	candidates := append(r.candidates,
		timestamps.Candidate{Source: timestamps.SourceBlock, CreatedAt: earliest, UpdatedAt: latest},
		timestamps.Candidate{Source: timestamps.SourceFallback, CreatedAt: r.req.FallbackCreatedAt, UpdatedAt: r.req.FallbackUpdatedAt},
	)
	res, err := timestamps.Resolve(candidates)
	if errors.Is(err, timestamps.ErrNoCandidates) && doc.Len() > 0 {
		r.warn(WarnMissingTimestamps, "no timestamp source for %d blocks", doc.Len())
		n.log.Warn().
			Str("event", string(WarnMissingTimestamps)).
			Str("shape", string(r.shape)).
			Int("blocks", doc.Len()).
			Msg("eventlog has no timestamp candidates")
	}

	log := blockdoc.NewEventLog(doc, htmlbridge.ToHTML(doc), res.CreatedAt, res.UpdatedAt)
	creator, modifier := r.originPair()
	log.CreatorOrigin, log.ModifierOrigin = string(creator), string(modifier)

	result := Result{
		Log:        log,
		Shape:      r.shape,
		Warnings:   r.warnings,
		Reconciled: r.reconciled,
		Decisions:  r.decisions,
		Signature:  r.sig,
		Payload:    r.payload,
		Resolution: res,
	}
	if r.reconciled {
		result.Summary = reconcile.Summarize(r.decisions)
		n.rec.ObserveDecisions(result.Summary)
	}
	for _, w := range r.warnings {
		n.rec.ObserveWarning(w.Code)
	}
	n.log.Debug().
		Str("shape", string(r.shape)).
		Int("blocks", doc.Len()).
		Str("fingerprint", result.Log.Fingerprint).
		Msg("eventlog normalized")
	return result
}
