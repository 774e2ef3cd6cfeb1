package blockdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Document is the ordered block list of one EventLog.
type Document struct {
	Blocks []Block
}

func (d Document) Len() int {
	return len(d.Blocks)
}

func (d Document) Clone() Document {
	if d.Blocks == nil {
		return Document{}
	}
	out := Document{Blocks: make([]Block, len(d.Blocks))}
	for i, block := range d.Blocks {
		out.Blocks[i] = block.Clone()
	}
	return out
}

// PlainText joins the block texts with newlines.
func (d Document) PlainText() string {
	lines := make([]string, 0, len(d.Blocks))
	for _, block := range d.Blocks {
		lines = append(lines, block.Text())
	}
	return strings.Join(lines, "\n")
}

// HasBlockTimestamps reports whether any block carries a creation instant.
func (d Document) HasBlockTimestamps() bool {
	for _, block := range d.Blocks {
		if block.HasTimestamp() {
			return true
		}
	}
	return false
}

// TimestampBounds returns the earliest CreatedAt and the latest effective
// UpdatedAt over all blocks. Both are zero when no block is timed.
func (d Document) TimestampBounds() (earliest, latest int64) {
	for _, block := range d.Blocks {
		if block.CreatedAt > 0 && (earliest == 0 || block.CreatedAt < earliest) {
			earliest = block.CreatedAt
		}
		if updated := block.EffectiveUpdatedAt(); updated > latest {
			latest = updated
		}
	}
	return earliest, latest
}

func (d Document) MarshalJSON() ([]byte, error) {
	if d.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Blocks)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	d.Blocks = blocks
	return nil
}

// Fingerprint hashes the canonical JSON form of the document.
func (d Document) Fingerprint() string {
	raw, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))
}

func (d Document) Equal(other Document) bool {
	left, err := json.Marshal(d)
	if err != nil {
		return false
	}
	right, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// EventLog is the persisted unit: the document plus its derived renderings
// and the record-level creation/update instants.
type EventLog struct {
	Document    Document `json:"document"`
	PlainText   string   `json:"plainText"`
	HTML        string   `json:"html"`
	Fingerprint string   `json:"fingerprint"`
	CreatedAt   int64    `json:"createdAt,omitempty"`
	UpdatedAt   int64    `json:"updatedAt,omitempty"`

	// CreatorOrigin and ModifierOrigin name the side that created and last
	// changed the log ("local" or "external"). Empty means unknown.
	CreatorOrigin  string `json:"creatorOrigin,omitempty"`
	ModifierOrigin string `json:"modifierOrigin,omitempty"`
}

// NewEventLog derives the plain text and fingerprint from doc. The HTML
// rendering is supplied by the caller.
func NewEventLog(doc Document, html string, createdAt, updatedAt int64) EventLog {
	return EventLog{
		Document:    doc,
		PlainText:   doc.PlainText(),
		HTML:        html,
		Fingerprint: doc.Fingerprint(),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}
