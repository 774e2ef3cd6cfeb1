// Package blockdoc holds the canonical block model for an EventLog: ordered
// paragraph blocks carrying optional creation/update instants in epoch
// milliseconds, plus the derived plain-text and HTML renderings.
package blockdoc

import (
	"encoding/json"
	"strings"
)

// Annotation is an opaque inline reference (tag, event, date, contact).
// The engine never interprets it, only carries it across a round trip.
type Annotation struct {
	Type        string `json:"type"`
	TargetID    string `json:"targetId,omitempty"`
	TargetName  string `json:"targetName,omitempty"`
	TargetDate  string `json:"targetDate,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
}

// Inline is a run of text with its formatting marks.
type Inline struct {
	Text      string      `json:"text"`
	Bold      bool        `json:"bold,omitempty"`
	Italic    bool        `json:"italic,omitempty"`
	Underline bool        `json:"underline,omitempty"`
	Strike    bool        `json:"strikethrough,omitempty"`
	Code      bool        `json:"code,omitempty"`
	Mention   *Annotation `json:"mention,omitempty"`
}

// Block is one paragraph. CreatedAt and UpdatedAt are epoch milliseconds;
// zero means the block carries no timestamp of its own.
type Block struct {
	ID          string   `json:"id,omitempty"`
	Children    []Inline `json:"children"`
	CreatedAt   int64    `json:"createdAt,omitempty"`
	UpdatedAt   int64    `json:"updatedAt,omitempty"`
	Level       int      `json:"level,omitempty"`
	Bullet      bool     `json:"bullet,omitempty"`
	BulletLevel int      `json:"bulletLevel,omitempty"`
}

// NewParagraph builds a single-run block.
func NewParagraph(id, text string, createdAt int64) Block {
	return Block{
		ID:        id,
		Children:  []Inline{{Text: text}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func (b Block) Text() string {
	if len(b.Children) == 1 {
		return b.Children[0].Text
	}
	var sb strings.Builder
	for _, child := range b.Children {
		sb.WriteString(child.Text)
	}
	return sb.String()
}

// FirstMention returns the first annotation carried by the block, if any.
func (b Block) FirstMention() *Annotation {
	for _, child := range b.Children {
		if child.Mention != nil {
			return child.Mention
		}
	}
	return nil
}

// IsEmpty reports whether the block has no visible text and no annotation.
func (b Block) IsEmpty() bool {
	if b.FirstMention() != nil {
		return false
	}
	return NormalizeText(b.Text()) == ""
}

// HasTimestamp reports whether the block starts a logical entry.
func (b Block) HasTimestamp() bool {
	return b.CreatedAt > 0
}

// EffectiveUpdatedAt falls back to CreatedAt when no update instant is set.
func (b Block) EffectiveUpdatedAt() int64 {
	if b.UpdatedAt > 0 {
		return b.UpdatedAt
	}
	return b.CreatedAt
}

// ClearTimestamps turns the block into a continuation of the previous entry.
func (b *Block) ClearTimestamps() {
	b.CreatedAt = 0
	b.UpdatedAt = 0
}

// SetText replaces the block's runs with a single plain run, keeping the
// first annotation so mentions survive a text-only rewrite.
func (b *Block) SetText(text string) {
	inline := Inline{Text: text}
	if mention := b.FirstMention(); mention != nil {
		copied := *mention
		inline.Mention = &copied
	}
	b.Children = []Inline{inline}
}

func (b Block) Clone() Block {
	out := b
	out.Children = make([]Inline, len(b.Children))
	for i, child := range b.Children {
		out.Children[i] = child
		if child.Mention != nil {
			mention := *child.Mention
			out.Children[i].Mention = &mention
		}
	}
	return out
}

func (b Block) nodeType() string {
	if b.Level > 0 {
		return "heading"
	}
	return "paragraph"
}

func (b Block) MarshalJSON() ([]byte, error) {
	type plain Block
	children := b.Children
	if children == nil {
		children = []Inline{}
	}
	p := plain(b)
	p.Children = children
	return json.Marshal(struct {
		Type string `json:"type"`
		plain
	}{Type: b.nodeType(), plain: p})
}
