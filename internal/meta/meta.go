// Package meta encodes the CompleteMeta payload: per-block content hints,
// identifiers and timestamps, base64 JSON hidden inside the outbound HTML so
// that blocks can be recognised when the HTML comes back without them.
package meta

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/htmlbridge"
	"eventlog/api/internal/reconcile"
	"eventlog/api/internal/signature"
)

const (
	Version      = 2
	ContainerID  = "4dnote-meta"
	wrapperClass = "4dnote-content-wrapper"
)

const containerStyle = "display:none; font-size:0; line-height:0; opacity:0; mso-hide:all;"

var (
	ErrNoContainer        = errors.New("meta container not found")
	ErrMalformed          = errors.New("malformed meta payload")
	ErrUnsupportedVersion = errors.New("unsupported meta version")
)

var (
	containerRe = regexp.MustCompile(`(?is)<div[^>]*\bid\s*=\s*["']?` + ContainerID + `["']?[^>]*>(.*?)</div>`)
	tagRe       = regexp.MustCompile(`<[^>]*>`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Node is the per-block entry. Absent fields are omitted on the wire.
type Node struct {
	ID      string               `json:"id,omitempty"`
	S       string               `json:"s,omitempty"`
	E       string               `json:"e,omitempty"`
	L       int                  `json:"l,omitempty"`
	TS      int64                `json:"ts,omitempty"`
	UT      int64                `json:"ut,omitempty"`
	Lvl     int                  `json:"lvl,omitempty"`
	Bullet  *int                 `json:"bullet,omitempty"`
	Mention *blockdoc.Annotation `json:"mention,omitempty"`
}

func (n Node) Hint() blockdoc.Hint {
	return blockdoc.Hint{S: n.S, E: n.E, L: n.L}
}

// Entries converts the payload nodes for the reconciliation matcher.
func (p *Payload) Entries() []reconcile.Entry {
	entries := make([]reconcile.Entry, 0, len(p.Slate.Nodes))
	for _, n := range p.Slate.Nodes {
		entries = append(entries, reconcile.Entry{
			ID:        n.ID,
			Hint:      n.Hint(),
			CreatedAt: n.TS,
			UpdatedAt: n.UT,
			Level:     n.Lvl,
			Bullet:    n.Bullet,
			Mention:   n.Mention,
		})
	}
	return entries
}

type Slate struct {
	Nodes []Node `json:"nodes"`
}

// Signature carries record-level provenance as wall-clock strings.
// Source, FourDNoteSource and LastModifiedSource are read from older
// producers and never written.
type Signature struct {
	CreatedAt          string `json:"createdAt,omitempty"`
	UpdatedAt          string `json:"updatedAt,omitempty"`
	CreatorOrigin      string `json:"creatorOrigin,omitempty"`
	ModifierOrigin     string `json:"modifierOrigin,omitempty"`
	FourDNoteSource    *bool  `json:"fourDNoteSource,omitempty"`
	Source             string `json:"source,omitempty"`
	LastModifiedSource string `json:"lastModifiedSource,omitempty"`
}

type Payload struct {
	V         int            `json:"v"`
	ID        string         `json:"id"`
	Slate     Slate          `json:"slate"`
	Signature *Signature     `json:"signature,omitempty"`
	Custom    map[string]any `json:"custom,omitempty"`
}

// Outbound is what the transport sends: the visible rendering, the encoded
// payload, and the full body combining both with the signature trailer.
type Outbound struct {
	VisibleHTML string  `json:"visibleHtml"`
	MetaBase64  string  `json:"metaPayloadBase64"`
	Body        string  `json:"body"`
	Payload     Payload `json:"-"`
}

type Codec struct {
	sig *signature.Codec
}

func NewCodec(loc *time.Location) *Codec {
	return &Codec{sig: signature.NewCodec(loc)}
}

// Encode builds the payload for doc and renders the outbound body.
func (c *Codec) Encode(recordID string, doc blockdoc.Document, sig signature.Meta, custom map[string]any) (Outbound, error) {
	payload := Payload{
		V:      Version,
		ID:     recordID,
		Slate:  Slate{Nodes: NodesFor(doc)},
		Custom: custom,
	}
	if sig.CreatedAt > 0 {
		payload.Signature = c.signatureFor(sig)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Outbound{}, fmt.Errorf("marshal meta payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	visible := htmlbridge.ToHTML(doc)

	var body strings.Builder
	body.WriteString(`<div class="` + wrapperClass + `" data-4dnote-version="2">`)
	body.WriteString(visible)
	body.WriteString(c.signatureHTML(sig))
	body.WriteString(`<div id="` + ContainerID + `" style="` + containerStyle + `">`)
	body.WriteString(encoded)
	body.WriteString(`</div></div>`)

	return Outbound{VisibleHTML: visible, MetaBase64: encoded, Body: body.String(), Payload: payload}, nil
}

// NodesFor computes one payload node per block.
func NodesFor(doc blockdoc.Document) []Node {
	nodes := make([]Node, 0, len(doc.Blocks))
	for _, block := range doc.Blocks {
		hint := blockdoc.HintOf(block.Text())
		node := Node{
			ID:  block.ID,
			S:   hint.S,
			E:   hint.E,
			L:   hint.L,
			TS:  block.CreatedAt,
			UT:  block.UpdatedAt,
			Lvl: block.Level,
		}
		if block.Bullet {
			level := block.BulletLevel
			node.Bullet = &level
		}
		if mention := block.FirstMention(); mention != nil {
			copied := *mention
			node.Mention = &copied
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func (c *Codec) signatureFor(sig signature.Meta) *Signature {
	sig = sig.Normalized()
	return &Signature{
		CreatedAt:      signature.FormatTime(sig.CreatedAt, c.sig.Location()),
		UpdatedAt:      signature.FormatTime(sig.UpdatedAt, c.sig.Location()),
		CreatorOrigin:  string(sig.CreatorOrigin),
		ModifierOrigin: string(sig.ModifierOrigin),
	}
}

func (c *Codec) signatureHTML(sig signature.Meta) string {
	lines := c.sig.Lines(sig)
	if len(lines) == 0 {
		return ""
	}
	blocks := []blockdoc.Block{blockdoc.NewParagraph("", signature.Separator, 0)}
	for _, line := range lines {
		blocks = append(blocks, blockdoc.NewParagraph("", line, 0))
	}
	return htmlbridge.ToHTML(blockdoc.Document{Blocks: blocks})
}

// SignatureMeta converts the payload signature back to provenance.
func (c *Codec) SignatureMeta(p *Payload) (signature.Meta, bool) {
	if p == nil || p.Signature == nil {
		return signature.Meta{}, false
	}
	s := p.Signature
	created, ok := signature.ParseTime(s.CreatedAt, c.sig.Location())
	if !ok {
		return signature.Meta{}, false
	}
	updated, _ := signature.ParseTime(s.UpdatedAt, c.sig.Location())
	meta := signature.Meta{
		CreatorOrigin:  parseOrigin(s.CreatorOrigin),
		CreatedAt:      created,
		ModifierOrigin: parseOrigin(s.ModifierOrigin),
		UpdatedAt:      updated,
	}
	if meta.CreatorOrigin == "" {
		switch {
		case s.Source == "outlook":
			meta.CreatorOrigin = signature.OriginExternal
		case s.FourDNoteSource != nil && !*s.FourDNoteSource:
			meta.CreatorOrigin = signature.OriginExternal
		}
	}
	if meta.ModifierOrigin == "" && s.LastModifiedSource == "outlook" {
		meta.ModifierOrigin = signature.OriginExternal
	}
	return meta.Normalized(), true
}

func parseOrigin(value string) signature.Origin {
	switch value {
	case string(signature.OriginLocal):
		return signature.OriginLocal
	case string(signature.OriginExternal):
		return signature.OriginExternal
	default:
		return ""
	}
}

// Decode extracts the payload from an HTML body. It returns false when the
// container is absent, the payload does not decode or validate, or the
// version is not recognised.
func Decode(s string) (*Payload, bool) {
	p, err := DecodeDetailed(s)
	if err != nil {
		return nil, false
	}
	return p, true
}

// DecodeDetailed is Decode with the failure reason.
func DecodeDetailed(s string) (*Payload, error) {
	m := containerRe.FindStringSubmatch(s)
	if m == nil {
		return nil, ErrNoContainer
	}
	encoded := html.UnescapeString(tagRe.ReplaceAllString(m[1], ""))
	encoded = spaceRe.ReplaceAllString(encoded, "")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "=")); err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrMalformed, err)
		}
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if payload.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, payload.V)
	}
	return &payload, nil
}

// StripContainer removes the hidden payload container from s.
func StripContainer(s string) string {
	return containerRe.ReplaceAllString(s, "")
}
