package normalize

import (
	"strings"

	"eventlog/api/internal/blockdoc"
)

// proseNode is a node in a ProseMirror document tree.
type proseNode struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs"`
	Content []proseNode    `json:"content"`
	Text    string         `json:"text"`
	Marks   []proseMark    `json:"marks"`
}

type proseMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs"`
}

// proseContext is the list nesting a textblock sits in.
type proseContext struct {
	listDepth int
	inItem    bool
	code      bool
}

// proseMirrorDocument flattens a ProseMirror tree into blocks, one per
// textblock. List items become bullet blocks at their nesting depth.
func proseMirrorDocument(root proseNode) blockdoc.Document {
	var blocks []blockdoc.Block
	collectProse(root, proseContext{}, &blocks)
	return blockdoc.Document{Blocks: blocks}
}

func collectProse(node proseNode, ctx proseContext, out *[]blockdoc.Block) {
	switch node.Type {
	case "paragraph":
		*out = append(*out, proseBlock(node, ctx, 0))
	case "heading":
		level := 1
		if lvl, ok := node.Attrs["level"].(float64); ok {
			level = int(lvl)
		}
		*out = append(*out, proseBlock(node, ctx, level))
	case "codeBlock":
		ctx.code = true
		*out = append(*out, proseBlock(node, ctx, 0))
	case "bulletList", "orderedList":
		ctx.listDepth++
		collectProseContent(node.Content, ctx, out)
	case "listItem":
		ctx.inItem = true
		collectProseContent(node.Content, ctx, out)
	case "horizontalRule", "hardBreak", "text":
	default:
		// doc, blockquote, table, tableRow, tableCell, tableHeader
		collectProseContent(node.Content, ctx, out)
	}
}

func collectProseContent(content []proseNode, ctx proseContext, out *[]blockdoc.Block) {
	for _, child := range content {
		collectProse(child, ctx, out)
	}
}

func proseBlock(node proseNode, ctx proseContext, level int) blockdoc.Block {
	block := blockdoc.Block{
		ID:       proseString(node.Attrs, "id"),
		Children: proseInlines(node.Content, ctx.code),
		Level:    level,
	}
	if ms, ok := node.Attrs["createdAt"].(float64); ok && ms > 0 {
		block.CreatedAt = int64(ms)
	}
	if ms, ok := node.Attrs["updatedAt"].(float64); ok && ms > 0 {
		block.UpdatedAt = int64(ms)
	}
	if ctx.inItem && ctx.listDepth > 0 {
		block.Bullet = true
		block.BulletLevel = ctx.listDepth - 1
	}
	return block
}

func proseInlines(content []proseNode, code bool) []blockdoc.Inline {
	runs := make([]blockdoc.Inline, 0, len(content))
	for _, child := range content {
		switch child.Type {
		case "text":
			if child.Text == "" {
				continue
			}
			run := blockdoc.Inline{Text: child.Text, Code: code}
			applyProseMarks(&run, child.Marks)
			runs = append(runs, run)
		case "hardBreak":
			runs = append(runs, blockdoc.Inline{Text: "\n"})
		case "mention":
			runs = append(runs, blockdoc.Inline{
				Text: firstNonEmpty(proseString(child.Attrs, "label"), proseString(child.Attrs, "id")),
				Mention: &blockdoc.Annotation{
					Type:       firstNonEmpty(proseString(child.Attrs, "kind"), "mention"),
					TargetID:   proseString(child.Attrs, "id"),
					TargetName: proseString(child.Attrs, "label"),
				},
			})
		default:
			runs = append(runs, proseInlines(child.Content, code)...)
		}
	}
	return mergeBreaks(runs)
}

// applyProseMarks maps ProseMirror marks onto run formatting. Links keep
// their text only.
func applyProseMarks(run *blockdoc.Inline, marks []proseMark) {
	for _, mark := range marks {
		switch mark.Type {
		case "bold", "strong":
			run.Bold = true
		case "italic", "em":
			run.Italic = true
		case "code":
			run.Code = true
		case "strike":
			run.Strike = true
		case "underline":
			run.Underline = true
		}
	}
}

// mergeBreaks folds hard-break runs into the neighbouring plain run.
func mergeBreaks(runs []blockdoc.Inline) []blockdoc.Inline {
	out := runs[:0]
	for _, run := range runs {
		if n := len(out); n > 0 && run.Text == "\n" && out[n-1].Mention == nil {
			out[n-1].Text += "\n"
			continue
		}
		out = append(out, run)
	}
	return out
}

func proseString(attrs map[string]any, key string) string {
	if attrs == nil {
		return ""
	}
	s, _ := attrs[key].(string)
	return strings.TrimSpace(s)
}
