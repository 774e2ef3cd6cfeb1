package timestamps

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"eventlog/api/internal/signature"
)

// ErrNoCandidates is returned by Resolve when no source offered an instant.
// Callers surface it as a data-integrity warning; no wall-clock value is
// substituted.
var ErrNoCandidates = errors.New("no timestamp candidates")

type Source string

const (
	SourceBlock     Source = "block"
	SourceSignature Source = "signature"
	SourceEnvelope  Source = "envelope"
	SourceFallback  Source = "fallback"
)

// Candidate is one source's opinion of the record instants. Zero values are
// absent.
type Candidate struct {
	Source    Source
	CreatedAt int64
	UpdatedAt int64
}

type Resolution struct {
	CreatedAt   int64
	UpdatedAt   int64
	CreatedFrom Source
	UpdatedFrom Source
}

// Resolve picks the earliest creation instant and the latest update instant
// across candidates. A candidate's CreatedAt also counts as an update
// candidate, so UpdatedAt is never earlier than CreatedAt.
func Resolve(candidates []Candidate) (Resolution, error) {
	var res Resolution
	for _, c := range candidates {
		if c.CreatedAt > 0 && (res.CreatedAt == 0 || c.CreatedAt < res.CreatedAt) {
			res.CreatedAt = c.CreatedAt
			res.CreatedFrom = c.Source
		}
		updated := c.UpdatedAt
		if updated <= 0 {
			updated = c.CreatedAt
		}
		if updated > res.UpdatedAt {
			res.UpdatedAt = updated
			res.UpdatedFrom = c.Source
		}
	}
	if res.CreatedAt == 0 && res.UpdatedAt == 0 {
		return Resolution{}, ErrNoCandidates
	}
	if res.CreatedAt == 0 {
		res.CreatedAt = res.UpdatedAt
		res.CreatedFrom = res.UpdatedFrom
	}
	return res, nil
}

// Extracted is the provenance recovered from a signature trailer.
type Extracted struct {
	Found          bool
	CreatedAt      int64
	UpdatedAt      int64
	CreatorOrigin  signature.Origin
	ModifierOrigin signature.Origin
}

// Candidate converts the extraction into a resolver input.
func (e Extracted) Candidate() Candidate {
	return Candidate{Source: SourceSignature, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

func (e Extracted) Meta() signature.Meta {
	return signature.Meta{
		CreatorOrigin:  e.CreatorOrigin,
		CreatedAt:      e.CreatedAt,
		ModifierOrigin: e.ModifierOrigin,
		UpdatedAt:      e.UpdatedAt,
	}
}

// FromSignature reads creation and modification instants from any signature
// present in text. UpdatedAt defaults to CreatedAt.
func FromSignature(text string, loc *time.Location) Extracted {
	meta, ok := signature.NewCodec(loc).Parse(text)
	if !ok {
		return Extracted{}
	}
	return Extracted{
		Found:          true,
		CreatedAt:      meta.CreatedAt,
		UpdatedAt:      meta.UpdatedAt,
		CreatorOrigin:  meta.CreatorOrigin,
		ModifierOrigin: meta.ModifierOrigin,
	}
}

var leadingRe = regexp.MustCompile(`^(\d{4}[-/]\d{1,2}[-/]\d{1,2}\s+\d{1,2}:\d{2}:\d{2})`)

// LeadingTimestamp parses a wall-clock timestamp at the start of line and
// returns the remainder with surrounding whitespace removed.
func LeadingTimestamp(line string, loc *time.Location) (int64, string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	m := leadingRe.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, line, false
	}
	ts, ok := signature.ParseTime(m[1], loc)
	if !ok {
		return 0, line, false
	}
	return ts, strings.TrimSpace(trimmed[len(m[0]):]), true
}

// HasLeadingTimestamps reports whether any line of text starts with a valid
// timestamp. Signature lines do not count.
func HasLeadingTimestamps(text string) bool {
	for _, line := range strings.Split(signature.Strip(text), "\n") {
		if _, _, ok := LeadingTimestamp(line, time.UTC); ok {
			return true
		}
	}
	return false
}
