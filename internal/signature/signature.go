// Package signature renders and recognises the provenance trailer appended
// to an EventLog's visible text:
//
//	---
//	由 🔮 4DNote 创建于 2025-03-01 09:00:00，最后修改于 2025-03-01 10:15:00
//
// The trailer is derived from timestamp metadata and never stored as content.
package signature

import (
	"regexp"
	"strings"
	"time"
)

type Origin string

const (
	OriginLocal    Origin = "local"
	OriginExternal Origin = "external"
)

const Separator = "---"

const (
	labelLocal    = "🔮 4DNote"
	labelExternal = "📧 Outlook"
)

const (
	originPattern = `(?:🔮|📧|🟣)?\s*(4DNote|Outlook|ReMarkable)`
	timePattern   = `(\d{4}[-/]\d{1,2}[-/]\d{1,2}\s+\d{1,2}:\d{2}:\d{2})`
)

var (
	lineRe     = regexp.MustCompile(`^(?:---\s*)?由\s+` + originPattern + `\s*(?:创建于|编辑于|最后(?:修改|编辑)于)\s+` + timePattern + `(?:\s*[，,]\s*(?:最后(?:修改|编辑)于|编辑于)\s+` + timePattern + `)?\s*$`)
	createdRe  = regexp.MustCompile(`由\s+` + originPattern + `\s*创建于\s+` + timePattern)
	modifiedRe = regexp.MustCompile(`(?:由\s+` + originPattern + `\s*)?(?:最后修改于|最后编辑于|编辑于)\s+` + timePattern)
)

// Meta is the provenance a signature encodes. Zero instants are absent.
type Meta struct {
	CreatorOrigin  Origin
	CreatedAt      int64
	ModifierOrigin Origin
	UpdatedAt      int64
}

// Normalized fills the defaults: origins default to local, the modifier to
// the creator, and UpdatedAt to CreatedAt.
func (m Meta) Normalized() Meta {
	if m.CreatorOrigin == "" {
		m.CreatorOrigin = OriginLocal
	}
	if m.ModifierOrigin == "" {
		m.ModifierOrigin = m.CreatorOrigin
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = m.CreatedAt
	}
	return m
}

func (m Meta) modified() bool {
	return m.UpdatedAt != m.CreatedAt || m.ModifierOrigin != m.CreatorOrigin
}

// Label is the display form of an origin.
func Label(origin Origin) string {
	if origin == OriginExternal {
		return labelExternal
	}
	return labelLocal
}

// ParseOrigin maps a product name captured from a signature to an origin.
func ParseOrigin(name string) Origin {
	switch name {
	case "Outlook", "ReMarkable":
		return OriginExternal
	default:
		return OriginLocal
	}
}

// Codec renders signatures in a fixed time zone.
type Codec struct {
	loc *time.Location
}

func NewCodec(loc *time.Location) *Codec {
	if loc == nil {
		loc = time.Local
	}
	return &Codec{loc: loc}
}

func (c *Codec) Location() *time.Location {
	return c.loc
}

// Lines returns the signature lines for m, without the separator. A meta
// without a creation instant renders nothing.
func (c *Codec) Lines(m Meta) []string {
	if m.CreatedAt <= 0 {
		return nil
	}
	m = m.Normalized()
	created := "由 " + Label(m.CreatorOrigin) + " 创建于 " + FormatTime(m.CreatedAt, c.loc)
	switch {
	case !m.modified():
		return []string{created}
	case m.ModifierOrigin == m.CreatorOrigin:
		return []string{created + "，最后修改于 " + FormatTime(m.UpdatedAt, c.loc)}
	default:
		return []string{
			created,
			"由 " + Label(m.ModifierOrigin) + " 最后修改于 " + FormatTime(m.UpdatedAt, c.loc),
		}
	}
}

// Render appends the signature for m to core. Any signature already trailing
// core is replaced, so the result carries exactly one.
func (c *Codec) Render(core string, m Meta) string {
	core = strings.TrimRight(Strip(core), " \t\r\n")
	lines := c.Lines(m)
	if len(lines) == 0 {
		return core
	}
	trailer := Separator + "\n" + strings.Join(lines, "\n")
	if strings.TrimSpace(core) == "" {
		return trailer
	}
	return core + "\n\n" + trailer
}

// IsSignatureLine reports whether text is a single signature line.
func IsSignatureLine(text string) bool {
	return lineRe.MatchString(strings.TrimSpace(text))
}

// Strip removes trailing signature blocks together with their separators.
// Text without a trailing signature is returned unchanged.
func Strip(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	found := false
	for {
		tail := trimBlankTail(lines)
		n := len(tail)
		for n > 0 && IsSignatureLine(tail[n-1]) {
			n--
		}
		if n == len(tail) {
			break
		}
		found = true
		tail = trimBlankTail(tail[:n])
		if len(tail) > 0 && strings.TrimSpace(tail[len(tail)-1]) == Separator {
			tail = trimBlankTail(tail[:len(tail)-1])
		}
		lines = tail
	}
	if !found {
		return text
	}
	return strings.Join(lines, "\n")
}

func trimBlankTail(lines []string) []string {
	n := len(lines)
	for n > 0 && strings.TrimSpace(lines[n-1]) == "" {
		n--
	}
	return lines[:n]
}
