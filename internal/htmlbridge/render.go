package htmlbridge

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"eventlog/api/internal/blockdoc"
)

// ToHTML renders doc as one paragraph element per block. Block metadata is
// not written here; it travels in the hidden CompleteMeta container.
func ToHTML(doc blockdoc.Document) string {
	var sb strings.Builder
	for _, block := range doc.Blocks {
		_ = html.Render(&sb, blockNode(block))
	}
	return sb.String()
}

func blockNode(block blockdoc.Block) *html.Node {
	tag := "p"
	if block.Level >= 1 && block.Level <= 6 {
		tag = "h" + strconv.Itoa(block.Level)
	}
	n := element(tag)
	if block.Bullet {
		n.Attr = append(n.Attr, attr("data-bullet", "true"), attr("data-bullet-level", strconv.Itoa(block.BulletLevel)))
	}
	for _, child := range block.Children {
		n.AppendChild(inlineNode(child))
	}
	return n
}

func inlineNode(run blockdoc.Inline) *html.Node {
	content := textWithBreaks(run.Text)
	wrap := func(tag string) {
		outer := element(tag)
		outer.AppendChild(content)
		content = outer
	}
	if run.Code {
		wrap("code")
	}
	if run.Strike {
		wrap("s")
	}
	if run.Underline {
		wrap("u")
	}
	if run.Italic {
		wrap("em")
	}
	if run.Bold {
		wrap("strong")
	}
	if run.Mention != nil {
		outer := mentionNode(run.Mention)
		outer.AppendChild(content)
		content = outer
	}
	return content
}

// textWithBreaks wraps text containing newlines in a bare <span> with <br>
// separators.
func textWithBreaks(text string) *html.Node {
	if !strings.Contains(text, "\n") {
		return textNode(text)
	}
	span := element("span")
	for i, part := range strings.Split(text, "\n") {
		if i > 0 {
			span.AppendChild(element("br"))
		}
		if part != "" {
			span.AppendChild(textNode(part))
		}
	}
	return span
}

func mentionNode(m *blockdoc.Annotation) *html.Node {
	var n *html.Node
	switch m.Type {
	case "tag":
		n = element("span", attr("class", "tag"), attr("data-tag-id", m.TargetID), attr("data-tag-name", m.TargetName))
	case "date":
		n = element("span", attr("class", "date-mention"), attr("data-date", m.TargetDate))
	case "event":
		n = element("a", attr("class", "event-mention"), attr("data-event-id", m.TargetID))
	default:
		n = element("span", attr("class", "mention"))
	}
	n.Attr = append(n.Attr, attr("data-mention-type", m.Type))
	if m.TargetID != "" {
		n.Attr = append(n.Attr, attr("data-target-id", m.TargetID))
	}
	if m.TargetName != "" {
		n.Attr = append(n.Attr, attr("data-target-name", m.TargetName))
	}
	if m.TargetDate != "" {
		n.Attr = append(n.Attr, attr("data-target-date", m.TargetDate))
	}
	if m.DisplayText != "" {
		n.Attr = append(n.Attr, attr("data-display-text", m.DisplayText))
	}
	return n
}
