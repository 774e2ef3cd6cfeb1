package blockdoc

import (
	"regexp"
	"strings"
	"unicode/utf16"
)

const hintWidth = 5

var inlineSpace = regexp.MustCompile(`[ \t\r\f\v]+`)

// NormalizeText applies HTML rendering whitespace rules line by line:
// non-breaking spaces become spaces, runs collapse to one space, lines are
// trimmed, and leading/trailing empty lines are dropped. Both sides of a
// round trip compare text in this form.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\u00a0", " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// Hint is the content fingerprint used to recognise a paragraph after the
// external channel has dropped its identifier.
type Hint struct {
	S string `json:"s,omitempty"`
	E string `json:"e,omitempty"`
	L int    `json:"l,omitempty"`
}

// HintOf computes the hint of a paragraph text. Lengths and slices are in
// UTF-16 code units so hints agree with producers that count that way.
func HintOf(text string) Hint {
	normalized := NormalizeText(text)
	units := utf16.Encode([]rune(normalized))
	n := len(units)
	if n == 0 {
		return Hint{}
	}
	head := units[:min(hintWidth, n)]
	hint := Hint{S: string(utf16.Decode(head)), L: n}
	if n > hintWidth {
		hint.E = string(utf16.Decode(units[n-hintWidth:]))
	} else {
		hint.E = normalized
	}
	return hint
}

// UnitLen is the UTF-16 length of s.
func UnitLen(s string) int {
	return len(utf16.Encode([]rune(s)))
}
