package htmlbridge

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"eventlog/api/internal/signature"
)

const maxEntityPasses = 10

var (
	officeParagraphRe = regexp.MustCompile(`(?is)<o:p>.*?</o:p>`)
	sdtPropsRe        = regexp.MustCompile(`(?is)<w:sdtPr>.*?</w:sdtPr>`)
	xmlIslandRe       = regexp.MustCompile(`(?is)<xml>.*?</xml>`)
	xmlnsRe           = regexp.MustCompile(`(?i)\s+xmlns:\w+="[^"]*"`)
	prefixedTagRe     = regexp.MustCompile(`(?i)</?[a-z][a-z0-9]*:[a-z0-9]+(?:\s[^>]*)?/?>`)
	doubleEscapedRe   = regexp.MustCompile(`&amp;(#\d+;|#[xX][0-9a-fA-F]+;|[a-zA-Z][a-zA-Z0-9]*;)`)

	listLevelRe  = regexp.MustCompile(`(?i)mso-list:.*?level(\d+)`)
	numberMarkRe = regexp.MustCompile(`^[\d\w]+\.$`)
)

// Sanitize cleans HTML returned by a desktop mail/calendar client. The
// pipeline is pure and deterministic: vendor XML remnants are stripped,
// multiply escaped entities decoded, fake list paragraphs turned into real
// lists, comments dropped, and inline styles reduced to the allow-list.
func Sanitize(s string) string {
	s = StripVendorMarkup(s)
	s = DecodeEntities(s)
	body, err := parseBody(s)
	if err != nil {
		return s
	}
	convertFakeLists(body)
	cleanAttributes(body)
	return renderChildren(body)
}

// StripVendorMarkup removes Office namespace tags and declarations, keeping
// the content of unknown prefixed elements.
func StripVendorMarkup(s string) string {
	s = officeParagraphRe.ReplaceAllString(s, "")
	s = sdtPropsRe.ReplaceAllString(s, "")
	s = xmlIslandRe.ReplaceAllString(s, "")
	s = xmlnsRe.ReplaceAllString(s, "")
	return prefixedTagRe.ReplaceAllString(s, "")
}

// DecodeEntities undoes repeated escaping such as "&amp;amp;lt;" until one
// level remains, bounded at ten passes.
func DecodeEntities(s string) string {
	for i := 0; i < maxEntityPasses; i++ {
		next := doubleEscapedRe.ReplaceAllString(s, "&$1")
		if next == s {
			break
		}
		s = next
	}
	return s
}

func isFakeListParagraph(n *html.Node) bool {
	if !isElement(n, "p") {
		return false
	}
	if strings.Contains(getAttr(n, "class"), "MsoListParagraph") {
		return true
	}
	style := strings.ToLower(getAttr(n, "style"))
	return strings.Contains(style, "mso-list:") && !strings.Contains(style, "mso-list:ignore")
}

func convertFakeLists(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		if !isFakeListParagraph(c) {
			convertFakeLists(c)
			c = c.NextSibling
			continue
		}
		run := []*html.Node{c}
		for next := nextElementSibling(c); isFakeListParagraph(next); next = nextElementSibling(next) {
			run = append(run, next)
		}
		list := buildList(run)
		n.InsertBefore(list, run[0])
		last := run[len(run)-1]
		after := last.NextSibling
		for s := run[0]; s != after; {
			following := s.NextSibling
			n.RemoveChild(s)
			s = following
		}
		c = after
	}
}

func buildList(items []*html.Node) *html.Node {
	tag := "ul"
	if marker := listMarker(items[0]); marker != nil && numberMarkRe.MatchString(strings.TrimSpace(textContent(marker))) {
		tag = "ol"
	}
	list := element(tag)
	for _, p := range items {
		li := element("li")
		if m := listLevelRe.FindStringSubmatch(getAttr(p, "style")); m != nil {
			if level, err := strconv.Atoi(m[1]); err == nil && level > 1 {
				li.Attr = append(li.Attr, attr("data-bullet-level", strconv.Itoa(level-1)))
			}
		}
		if marker := listMarker(p); marker != nil {
			marker.Parent.RemoveChild(marker)
		}
		for child := p.FirstChild; child != nil; {
			next := child.NextSibling
			p.RemoveChild(child)
			if child.Type != html.CommentNode {
				li.AppendChild(child)
			}
			child = next
		}
		list.AppendChild(li)
	}
	return list
}

func listMarker(p *html.Node) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if isElement(c, "span") && strings.Contains(strings.ToLower(getAttr(c, "style")), "mso-list:ignore") {
				found = c
				return
			}
			walk(c)
		}
	}
	walk(p)
	return found
}

func cleanAttributes(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.ElementNode:
			if style := getAttr(c, "style"); style != "" && !isHidden(c) {
				if filtered := FilterStyle(style); filtered != "" {
					setAttr(c, "style", filtered)
				} else {
					removeAttr(c, "style")
				}
			}
			removeAttr(c, "bgcolor")
			if c.Data == "font" {
				removeAttr(c, "color", "face", "size")
			}
			cleanAttributes(c)
		}
		c = next
	}
}

// StripSignatureElements removes paragraphs that hold only a signature
// trailer, and a lone separator paragraph directly before one.
func StripSignatureElements(s string) string {
	body, err := parseBody(s)
	if err != nil {
		return s
	}
	removeSignatureElements(body)
	return renderChildren(body)
}

func removeSignatureElements(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if isBlock(c) && !hasBlockDescendant(c) {
			if isSignatureText(textContent(c)) {
				if prev := previousElementSibling(c); prev != nil && strings.TrimSpace(textContent(prev)) == signature.Separator {
					n.RemoveChild(prev)
				}
				n.RemoveChild(c)
			}
		} else if c.Type == html.ElementNode {
			removeSignatureElements(c)
		}
		c = next
	}
}

// isSignatureText reports whether every non-blank line is a signature line
// or separator, with at least one signature line.
func isSignatureText(text string) bool {
	found := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\u00a0", " "))
		switch {
		case line == "" || line == signature.Separator:
		case signature.IsSignatureLine(line):
			found = true
		default:
			return false
		}
	}
	return found
}

func previousElementSibling(n *html.Node) *html.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		switch s.Type {
		case html.ElementNode:
			return s
		case html.TextNode:
			if strings.TrimSpace(s.Data) != "" {
				return nil
			}
		}
	}
	return nil
}
