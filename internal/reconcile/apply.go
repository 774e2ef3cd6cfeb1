package reconcile

import (
	"sort"

	"eventlog/api/internal/blockdoc"
)

// Apply merges decisions into a document in paragraph order. Paired blocks
// keep the paragraph text and take id, timestamps, level, bullet and
// annotation from the entry. Inserted blocks get their fresh id and no
// timestamps. Deleted entries are dropped. A pair whose text changed is
// stamped as updated at editedAt when that is later than the entry's.
func Apply(blocks []blockdoc.Block, entries []Entry, decisions []Decision, editedAt int64) blockdoc.Document {
	kept := make([]Decision, 0, len(decisions))
	for _, d := range decisions {
		if d.HTMLIndex >= 0 && d.HTMLIndex < len(blocks) {
			kept = append(kept, d)
		}
	}
	sort.SliceStable(kept, func(a, b int) bool { return kept[a].HTMLIndex < kept[b].HTMLIndex })

	out := blockdoc.Document{Blocks: make([]blockdoc.Block, 0, len(kept))}
	for _, d := range kept {
		block := blocks[d.HTMLIndex].Clone()
		block.ID = d.ID
		if d.MetaIndex >= 0 && d.MetaIndex < len(entries) {
			mergeEntry(&block, entries[d.MetaIndex])
			if d.Kind != KindExact && d.Score < 100 && editedAt > block.UpdatedAt {
				block.UpdatedAt = editedAt
			}
		} else {
			block.ClearTimestamps()
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out
}

func mergeEntry(block *blockdoc.Block, entry Entry) {
	block.CreatedAt = entry.CreatedAt
	block.UpdatedAt = entry.UpdatedAt
	if entry.Level > 0 {
		block.Level = entry.Level
	}
	if entry.Bullet != nil {
		block.Bullet = true
		block.BulletLevel = *entry.Bullet
	}
	if entry.Mention != nil && block.FirstMention() == nil {
		mention := *entry.Mention
		if len(block.Children) == 0 {
			block.Children = []blockdoc.Inline{{}}
		}
		block.Children[0].Mention = &mention
	}
}

// Summary counts decisions per kind.
type Summary struct {
	Exact    int `json:"exact"`
	Sandwich int `json:"sandwich"`
	Fuzzy    int `json:"fuzzy"`
	Insert   int `json:"insert"`
	Delete   int `json:"delete"`
}

func Summarize(decisions []Decision) Summary {
	var s Summary
	for _, d := range decisions {
		switch d.Kind {
		case KindExact:
			s.Exact++
		case KindSandwich:
			s.Sandwich++
		case KindFuzzy:
			s.Fuzzy++
		case KindInsert:
			s.Insert++
		case KindDelete:
			s.Delete++
		}
	}
	return s
}

// Matched is the number of paragraphs that kept an existing identity.
func (s Summary) Matched() int {
	return s.Exact + s.Sandwich + s.Fuzzy
}

// Counts lists the summary by kind, for metrics.
func (s Summary) Counts() map[Kind]int {
	return map[Kind]int{
		KindExact:    s.Exact,
		KindSandwich: s.Sandwich,
		KindFuzzy:    s.Fuzzy,
		KindInsert:   s.Insert,
		KindDelete:   s.Delete,
	}
}
