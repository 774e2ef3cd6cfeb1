// Package reconcile pairs paragraphs extracted from returned HTML with the
// payload entries recorded when the HTML was sent, so block identity and
// timestamps survive a channel that drops both.
//
// Matching runs in three layers: exact hint equality, sandwich inference
// between already-paired neighbours, and greedy best-score fuzzy matching.
// The last layer is where an optimal assignment (Hungarian algorithm) would
// slot in if greedy pairing proves insufficient.
package reconcile

import (
	"sort"
	"unicode/utf16"

	"eventlog/api/internal/blockdoc"
)

// DefaultThreshold is the minimum fuzzy score for a Layer 3 pairing.
const DefaultThreshold = 50.0

type Kind string

const (
	KindExact    Kind = "exact"
	KindSandwich Kind = "sandwich"
	KindFuzzy    Kind = "fuzzy"
	KindInsert   Kind = "insert"
	KindDelete   Kind = "delete"
)

// Entry is one block as recorded in the outbound payload.
type Entry struct {
	ID        string
	Hint      blockdoc.Hint
	CreatedAt int64
	UpdatedAt int64
	Level     int
	Bullet    *int
	Mention   *blockdoc.Annotation
}

// EntriesFor builds entries from a known document, for reconciling against
// a baseline when the payload did not survive.
func EntriesFor(doc blockdoc.Document) []Entry {
	entries := make([]Entry, 0, len(doc.Blocks))
	for _, block := range doc.Blocks {
		entry := Entry{
			ID:        block.ID,
			Hint:      blockdoc.HintOf(block.Text()),
			CreatedAt: block.CreatedAt,
			UpdatedAt: block.UpdatedAt,
			Level:     block.Level,
			Mention:   block.FirstMention(),
		}
		if block.Bullet {
			level := block.BulletLevel
			entry.Bullet = &level
		}
		entries = append(entries, entry)
	}
	return entries
}

// Decision is the outcome for one paragraph or entry. HTMLIndex is -1 for
// deletions and MetaIndex is -1 for insertions. ID is the block id the
// paragraph keeps or receives.
type Decision struct {
	Kind      Kind
	HTMLIndex int
	MetaIndex int
	Score     float64
	ID        string
}

type Matcher struct {
	threshold float64
	newID     func() string
}

// NewMatcher returns a matcher. newID supplies identifiers for inserted
// paragraphs and for entries recorded without one.
func NewMatcher(threshold float64, newID func() string) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold, newID: newID}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

type pairing struct {
	htmlToMeta []int
	metaUsed   []bool
	kind       []Kind
	score      []float64
}

func (p *pairing) pair(h, e int, kind Kind, score float64) {
	p.htmlToMeta[h] = e
	p.metaUsed[e] = true
	p.kind[h] = kind
	p.score[h] = score
}

// Match pairs paragraph hints with entries. The result lists paragraphs in
// order (pairs and insertions), then deletions in entry order.
func (m *Matcher) Match(paragraphs []blockdoc.Hint, entries []Entry) []Decision {
	p := &pairing{
		htmlToMeta: make([]int, len(paragraphs)),
		metaUsed:   make([]bool, len(entries)),
		kind:       make([]Kind, len(paragraphs)),
		score:      make([]float64, len(paragraphs)),
	}
	for i := range p.htmlToMeta {
		p.htmlToMeta[i] = -1
	}

	m.matchExact(p, paragraphs, entries)
	m.matchSandwich(p, paragraphs, entries)
	m.matchFuzzy(p, paragraphs, entries)

	decisions := make([]Decision, 0, len(paragraphs)+len(entries))
	for i, e := range p.htmlToMeta {
		if e < 0 {
			decisions = append(decisions, Decision{Kind: KindInsert, HTMLIndex: i, MetaIndex: -1, ID: m.freshID()})
			continue
		}
		id := entries[e].ID
		if id == "" {
			id = m.freshID()
		}
		decisions = append(decisions, Decision{Kind: p.kind[i], HTMLIndex: i, MetaIndex: e, Score: p.score[i], ID: id})
	}
	for e, used := range p.metaUsed {
		if !used {
			decisions = append(decisions, Decision{Kind: KindDelete, HTMLIndex: -1, MetaIndex: e, ID: entries[e].ID})
		}
	}
	return decisions
}

func (m *Matcher) freshID() string {
	if m.newID == nil {
		return ""
	}
	return m.newID()
}

func (m *Matcher) matchExact(p *pairing, paragraphs []blockdoc.Hint, entries []Entry) {
	for i, hint := range paragraphs {
		for e, entry := range entries {
			if p.metaUsed[e] || entry.Hint != hint {
				continue
			}
			p.pair(i, e, KindExact, 100)
			break
		}
	}
}

// matchSandwich pairs a paragraph lying alone between two paired neighbours
// with the single unused entry between their partners.
func (m *Matcher) matchSandwich(p *pairing, paragraphs []blockdoc.Hint, entries []Entry) {
	for i := range paragraphs {
		if p.htmlToMeta[i] >= 0 {
			continue
		}
		prev, next := -1, -1
		for j := i - 1; j >= 0; j-- {
			if p.htmlToMeta[j] >= 0 {
				prev = j
				break
			}
		}
		for j := i + 1; j < len(paragraphs); j++ {
			if p.htmlToMeta[j] >= 0 {
				next = j
				break
			}
		}
		if prev < 0 || next < 0 {
			continue
		}
		if next-prev-1 != 1 {
			continue
		}
		lo, hi := p.htmlToMeta[prev], p.htmlToMeta[next]
		if hi <= lo {
			continue
		}
		candidate, unused := -1, 0
		for e := lo + 1; e < hi; e++ {
			if !p.metaUsed[e] {
				candidate = e
				unused++
			}
		}
		if unused != 1 {
			continue
		}
		p.pair(i, candidate, KindSandwich, Score(paragraphs[i], entries[candidate].Hint))
	}
}

type candidate struct {
	html, meta int
	score      float64
}

func (m *Matcher) matchFuzzy(p *pairing, paragraphs []blockdoc.Hint, entries []Entry) {
	var candidates []candidate
	for i, hint := range paragraphs {
		if p.htmlToMeta[i] >= 0 {
			continue
		}
		for e, entry := range entries {
			if p.metaUsed[e] {
				continue
			}
			if score := Score(hint, entry.Hint); score >= m.threshold {
				candidates = append(candidates, candidate{html: i, meta: e, score: score})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if ca.html != cb.html {
			return ca.html < cb.html
		}
		return ca.meta < cb.meta
	})
	for _, c := range candidates {
		if p.htmlToMeta[c.html] >= 0 || p.metaUsed[c.meta] {
			continue
		}
		p.pair(c.html, c.meta, KindFuzzy, c.score)
	}
}

// Score rates how likely two hints describe the same paragraph, 0 to 100:
// up to 40 each for the head and tail, and 20 or 10 for similar length.
func Score(a, b blockdoc.Hint) float64 {
	var score float64
	score += affixScore(a.S, b.S)
	score += affixScore(a.E, b.E)
	if a.L > 0 && b.L > 0 {
		diff := a.L - b.L
		if diff < 0 {
			diff = -diff
		}
		ratio := 1 - float64(diff)/float64(max(a.L, b.L))
		switch {
		case ratio > 0.8:
			score += 20
		case ratio > 0.5:
			score += 10
		}
	}
	return score
}

func affixScore(a, b string) float64 {
	if a != "" && a == b {
		return 40
	}
	return 40 * positionalSimilarity(a, b)
}

// positionalSimilarity is the share of equal code units at equal positions
// over the shorter string.
func positionalSimilarity(a, b string) float64 {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	n := min(len(ua), len(ub))
	if n == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < n; i++ {
		if ua[i] == ub[i] {
			matches++
		}
	}
	return float64(matches) / float64(n)
}
