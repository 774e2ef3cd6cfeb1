package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/signature"
)

// slateNode covers both element and leaf nodes of the Slate-shaped JSON the
// editor stores, plus the canonical block JSON written by this package.
type slateNode struct {
	Type     string      `json:"type"`
	ID       string      `json:"id"`
	Text     *string     `json:"text"`
	Children []slateNode `json:"children"`

	Bold          bool `json:"bold"`
	Italic        bool `json:"italic"`
	Underline     bool `json:"underline"`
	Strikethrough bool `json:"strikethrough"`
	Code          bool `json:"code"`

	CreatedAt   json.RawMessage `json:"createdAt"`
	UpdatedAt   json.RawMessage `json:"updatedAt"`
	Level       int             `json:"level"`
	Bullet      bool            `json:"bullet"`
	BulletLevel int             `json:"bulletLevel"`

	// timestamp-divider
	Timestamp   string `json:"timestamp"`
	DisplayText string `json:"displayText"`

	// inline mentions
	TagID        string               `json:"tagId"`
	TagName      string               `json:"tagName"`
	StartDate    string               `json:"startDate"`
	OriginalText string               `json:"originalText"`
	EventID      string               `json:"eventId"`
	EventTitle   string               `json:"eventTitle"`
	Mention      *blockdoc.Annotation `json:"mention"`
}

// structured is a parsed StructuredText value.
type structured struct {
	doc      blockdoc.Document
	envelope [2]int64
	migrated bool
}

var headingTypes = map[string]int{
	"heading-one": 1, "heading-two": 2, "heading-three": 3,
	"heading-four": 4, "heading-five": 5, "heading-six": 6,
}

func parseStructured(raw string, loc *time.Location) (structured, bool) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return structured{}, false
	}
	if data[0] == '[' {
		var nodes []slateNode
		if err := json.Unmarshal(data, &nodes); err != nil {
			return structured{}, false
		}
		doc, migrated, ok := slateDocument(nodes, loc)
		return structured{doc: doc, migrated: migrated}, ok
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return structured{}, false
	}
	var kind string
	_ = json.Unmarshal(obj["type"], &kind)
	if kind == "doc" {
		var root proseNode
		if err := json.Unmarshal(data, &root); err != nil {
			return structured{}, false
		}
		return structured{doc: proseMirrorDocument(root)}, true
	}
	if inner, ok := obj["slateJson"]; ok {
		var s string
		if err := json.Unmarshal(inner, &s); err == nil {
			return parseStructured(s, loc)
		}
	}
	for _, key := range []string{"document", "nodes"} {
		body, ok := obj[key]
		if !ok {
			continue
		}
		var nodes []slateNode
		if err := json.Unmarshal(body, &nodes); err != nil {
			return structured{}, false
		}
		doc, migrated, ok := slateDocument(nodes, loc)
		if !ok {
			return structured{}, false
		}
		out := structured{doc: doc, migrated: migrated}
		out.envelope[0] = parseInstant(obj["createdAt"], loc)
		out.envelope[1] = parseInstant(obj["updatedAt"], loc)
		return out, true
	}
	return structured{}, false
}

// slateDocument converts top-level nodes to blocks. timestamp-divider nodes
// are folded into the creation instant of the paragraph that follows. It
// reports false when no node was recognisable.
func slateDocument(nodes []slateNode, loc *time.Location) (blockdoc.Document, bool, bool) {
	doc := blockdoc.Document{Blocks: make([]blockdoc.Block, 0, len(nodes))}
	var pending int64
	migrated := false
	recognised := len(nodes) == 0
	for _, node := range nodes {
		switch {
		case node.Type == "timestamp-divider":
			migrated = true
			recognised = true
			stamp := node.Timestamp
			if stamp == "" {
				stamp = node.DisplayText
			}
			if ts := parseInstantString(stamp, loc); ts > 0 {
				pending = ts
			}
		case isLeaf(node) || isMention(node.Type):
			recognised = true
			doc.Blocks = append(doc.Blocks, blockdoc.Block{Children: inlinesOf([]slateNode{node})})
		case node.Children != nil && hasElementChild(node) && !isBlockType(node.Type):
			// list or container wrapper
			inner, m, ok := slateDocument(node.Children, loc)
			if ok {
				recognised = true
				migrated = migrated || m
				doc.Blocks = append(doc.Blocks, inner.Blocks...)
			}
		case node.Children != nil || isBlockType(node.Type):
			recognised = true
			block := blockFromSlate(node, loc)
			if pending > 0 {
				block.CreatedAt = pending
				if block.UpdatedAt < pending {
					block.UpdatedAt = pending
				}
				pending = 0
			}
			doc.Blocks = append(doc.Blocks, block)
		}
	}
	return doc, migrated, recognised
}

func isLeaf(n slateNode) bool {
	return n.Text != nil && n.Type == ""
}

func isMention(kind string) bool {
	switch kind {
	case "tag", "dateMention", "eventMention", "mention":
		return true
	}
	return false
}

func isBlockType(kind string) bool {
	if _, ok := headingTypes[kind]; ok {
		return true
	}
	return kind == "paragraph" || kind == "heading"
}

func hasElementChild(n slateNode) bool {
	for _, child := range n.Children {
		if !isLeaf(child) && !isMention(child.Type) && child.Type != "link" {
			return true
		}
	}
	return false
}

func blockFromSlate(n slateNode, loc *time.Location) blockdoc.Block {
	block := blockdoc.Block{
		ID:          n.ID,
		Children:    inlinesOf(n.Children),
		CreatedAt:   parseInstant(n.CreatedAt, loc),
		UpdatedAt:   parseInstant(n.UpdatedAt, loc),
		Bullet:      n.Bullet,
		BulletLevel: n.BulletLevel,
	}
	if level, ok := headingTypes[n.Type]; ok {
		block.Level = level
	} else if n.Type == "heading" {
		block.Level = max(n.Level, 1)
	}
	if !block.Bullet {
		block.BulletLevel = 0
	}
	return block
}

func inlinesOf(nodes []slateNode) []blockdoc.Inline {
	out := make([]blockdoc.Inline, 0, len(nodes))
	for _, n := range nodes {
		switch {
		case isLeaf(n):
			run := blockdoc.Inline{
				Text:      *n.Text,
				Bold:      n.Bold,
				Italic:    n.Italic,
				Underline: n.Underline,
				Strike:    n.Strikethrough,
				Code:      n.Code,
			}
			if n.Mention != nil {
				m := *n.Mention
				run.Mention = &m
			}
			out = append(out, run)
		case isMention(n.Type):
			out = append(out, mentionInline(n))
		default:
			out = append(out, inlinesOf(n.Children)...)
		}
	}
	return out
}

func mentionInline(n slateNode) blockdoc.Inline {
	text := plainText(n.Children)
	var m blockdoc.Annotation
	switch n.Type {
	case "tag":
		m = blockdoc.Annotation{Type: "tag", TargetID: n.TagID, TargetName: n.TagName}
		if text == "" && n.TagName != "" {
			text = "#" + n.TagName
		}
	case "dateMention":
		m = blockdoc.Annotation{Type: "date", TargetDate: n.StartDate, TargetID: n.EventID, DisplayText: n.OriginalText}
		if text == "" {
			text = firstNonEmpty(n.OriginalText, n.StartDate)
		}
	case "eventMention":
		m = blockdoc.Annotation{Type: "event", TargetID: n.EventID, TargetName: n.EventTitle}
		if text == "" {
			text = n.EventTitle
		}
	default:
		if n.Mention != nil {
			m = *n.Mention
		} else {
			m = blockdoc.Annotation{Type: "mention", DisplayText: n.DisplayText}
		}
		if text == "" {
			text = m.DisplayText
		}
	}
	return blockdoc.Inline{Text: text, Mention: &m}
}

func plainText(nodes []slateNode) string {
	var sb strings.Builder
	for _, n := range nodes {
		if n.Text != nil {
			sb.WriteString(*n.Text)
		}
		sb.WriteString(plainText(n.Children))
	}
	return sb.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseInstant accepts epoch milliseconds as a number or numeric string,
// RFC 3339, or the signature wall-clock form.
func parseInstant(raw json.RawMessage, loc *time.Location) int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		return parseInstantString(s, loc)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int64(f)
}

func parseInstantString(s string, loc *time.Location) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return max(ms, 0)
	}
	if ms, ok := signature.ParseTime(s, loc); ok {
		return ms
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
