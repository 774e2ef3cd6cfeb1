package htmlbridge

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"eventlog/api/internal/blockdoc"
)

var sourceSpace = regexp.MustCompile(`[ \t\r\n\f]+`)

type blockContext struct {
	level       int
	bullet      bool
	bulletLevel int
	listDepth   int
}

type marks struct {
	bold, italic, underline, strike, code bool
	mention                               *blockdoc.Annotation
}

// char is one visible rune tagged with the run it came from.
type char struct {
	r   rune
	run int
}

type blockBuilder struct {
	runs  []blockdoc.Inline
	chars []char
}

// FromHTML extracts blocks from HTML without any metadata. Paragraph-like
// elements become blocks; loose inline content between them is gathered
// into implicit blocks. Hidden elements are ignored. Ids and timestamps are
// left empty.
func FromHTML(s string) blockdoc.Document {
	body, err := parseBody(s)
	if err != nil {
		return blockdoc.Document{}
	}
	var blocks []blockdoc.Block
	collectContainer(body, blockContext{}, &blocks)
	return blockdoc.Document{Blocks: blocks}
}

// ExtractText returns the visible text of s, one line per block.
func ExtractText(s string) string {
	return FromHTML(s).PlainText()
}

func collectContainer(n *html.Node, ctx blockContext, out *[]blockdoc.Block) {
	var pending []*html.Node
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if block, ok := buildBlock(pending, ctx); ok {
			*out = append(*out, block)
		}
		pending = nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.CommentNode || isHidden(c):
			continue
		case isBlock(c):
			flush()
			collectBlockElement(c, ctx, out)
		default:
			pending = append(pending, c)
		}
	}
	flush()
}

func collectBlockElement(n *html.Node, ctx blockContext, out *[]blockdoc.Block) {
	switch n.Data {
	case "hr":
		return
	case "ul", "ol":
		ctx.listDepth++
	case "li":
		ctx.bullet = true
		ctx.bulletLevel = max(ctx.listDepth-1, 0)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		ctx.level = int(n.Data[1] - '0')
	}
	if getAttr(n, "data-bullet") == "true" {
		ctx.bullet = true
	}
	if raw := getAttr(n, "data-bullet-level"); raw != "" {
		if level, err := strconv.Atoi(raw); err == nil && level >= 0 {
			ctx.bullet = true
			ctx.bulletLevel = level
		}
	}
	if hasBlockDescendant(n) {
		collectContainer(n, ctx, out)
		return
	}
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	if block, ok := buildBlock(children, ctx); ok {
		*out = append(*out, block)
	}
}

func buildBlock(nodes []*html.Node, ctx blockContext) (blockdoc.Block, bool) {
	b := &blockBuilder{}
	for _, n := range nodes {
		b.walk(n, marks{})
	}
	children := b.finish()
	if len(children) == 0 {
		return blockdoc.Block{}, false
	}
	return blockdoc.Block{
		Children:    children,
		Level:       ctx.level,
		Bullet:      ctx.bullet,
		BulletLevel: ctx.bulletLevel,
	}, true
}

func (b *blockBuilder) walk(n *html.Node, m marks) {
	switch n.Type {
	case html.TextNode:
		text := strings.ReplaceAll(n.Data, "\u00a0", " ")
		b.appendText(sourceSpace.ReplaceAllString(text, " "), m)
		return
	case html.ElementNode:
	default:
		return
	}
	if isHidden(n) {
		return
	}
	switch n.Data {
	case "br":
		b.appendText("\n", m)
		return
	case "strong", "b":
		m.bold = true
	case "em", "i":
		m.italic = true
	case "u", "ins":
		m.underline = true
	case "s", "strike", "del":
		m.strike = true
	case "code", "kbd", "samp", "tt":
		m.code = true
	}
	applyStyleMarks(getAttr(n, "style"), &m)
	if mention := mentionFrom(n); mention != nil {
		m.mention = mention
		b.openRun(m)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.walk(c, m)
	}
}

// openRun makes sure an annotation element produces a run even when its
// text collapses to nothing.
func (b *blockBuilder) openRun(m marks) {
	b.runs = append(b.runs, runFor(m))
}

func (b *blockBuilder) appendText(text string, m marks) {
	if text == "" {
		return
	}
	idx := len(b.runs) - 1
	if idx < 0 || !sameMarks(b.runs[idx], m) {
		b.runs = append(b.runs, runFor(m))
		idx++
	}
	for _, r := range text {
		b.chars = append(b.chars, char{r: r, run: idx})
	}
}

// finish applies rendering whitespace rules across run boundaries and
// rebuilds the runs from the surviving characters.
func (b *blockBuilder) finish() []blockdoc.Inline {
	kept := make([]char, 0, len(b.chars))
	for _, c := range b.chars {
		if c.r == ' ' {
			if len(kept) == 0 || kept[len(kept)-1].r == ' ' || kept[len(kept)-1].r == '\n' {
				continue
			}
		}
		if c.r == '\n' {
			for len(kept) > 0 && kept[len(kept)-1].r == ' ' {
				kept = kept[:len(kept)-1]
			}
		}
		kept = append(kept, c)
	}
	for len(kept) > 0 && (kept[len(kept)-1].r == ' ' || kept[len(kept)-1].r == '\n') {
		kept = kept[:len(kept)-1]
	}
	start := 0
	for start < len(kept) && kept[start].r == '\n' {
		start++
	}
	kept = kept[start:]

	texts := make([]strings.Builder, len(b.runs))
	for _, c := range kept {
		texts[c.run].WriteRune(c.r)
	}
	var out []blockdoc.Inline
	for i, run := range b.runs {
		run.Text = texts[i].String()
		if run.Text == "" && run.Mention == nil {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Mention == nil && run.Mention == nil && sameFormatting(out[n-1], run) {
			out[n-1].Text += run.Text
			continue
		}
		out = append(out, run)
	}
	return out
}

func runFor(m marks) blockdoc.Inline {
	return blockdoc.Inline{
		Bold:      m.bold,
		Italic:    m.italic,
		Underline: m.underline,
		Strike:    m.strike,
		Code:      m.code,
		Mention:   m.mention,
	}
}

func sameMarks(run blockdoc.Inline, m marks) bool {
	return run.Mention == m.mention && sameFormatting(run, runFor(m))
}

func sameFormatting(a, b blockdoc.Inline) bool {
	return a.Bold == b.Bold && a.Italic == b.Italic && a.Underline == b.Underline &&
		a.Strike == b.Strike && a.Code == b.Code
}

func applyStyleMarks(style string, m *marks) {
	for _, decl := range parseDeclarations(style) {
		switch decl.prop {
		case "font-weight":
			if boldWeights[decl.value] {
				m.bold = true
			}
		case "font-style":
			if decl.value == "italic" {
				m.italic = true
			}
		case "text-decoration", "text-decoration-line":
			if strings.Contains(decl.value, "underline") {
				m.underline = true
			}
			if strings.Contains(decl.value, "line-through") {
				m.strike = true
			}
		}
	}
}

// mentionFrom recognises annotation elements by their data attributes.
func mentionFrom(n *html.Node) *blockdoc.Annotation {
	kind := getAttr(n, "data-mention-type")
	switch {
	case kind != "":
	case hasClass(n, "tag") && getAttr(n, "data-tag-id") != "":
		kind = "tag"
	case hasClass(n, "date-mention") && getAttr(n, "data-date") != "":
		kind = "date"
	case hasClass(n, "event-mention") && getAttr(n, "data-event-id") != "":
		kind = "event"
	default:
		return nil
	}
	m := &blockdoc.Annotation{
		Type:        kind,
		TargetID:    firstNonEmpty(getAttr(n, "data-target-id"), getAttr(n, "data-tag-id"), getAttr(n, "data-event-id")),
		TargetName:  firstNonEmpty(getAttr(n, "data-target-name"), getAttr(n, "data-tag-name")),
		TargetDate:  firstNonEmpty(getAttr(n, "data-target-date"), getAttr(n, "data-date")),
		DisplayText: getAttr(n, "data-display-text"),
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
