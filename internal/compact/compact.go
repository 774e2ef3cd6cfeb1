// Package compact canonicalises a block document: it drops empty and
// signature blocks, collapses timestamps that sit closer together than the
// minimum gap, and assigns ids to blocks that lack one. Every step is
// idempotent.
package compact

import (
	"strings"
	"time"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/signature"
)

// DefaultMinGap separates two logical entries. Timed blocks closer than this
// to the previous kept timestamp become continuations.
const DefaultMinGap = 5 * time.Minute

type Options struct {
	MinGap time.Duration
	// FallbackCreatedAt is given to the first block when no block is timed.
	// Zero leaves the document untimed.
	FallbackCreatedAt int64
	// NewID assigns ids to blocks without one. Nil leaves them empty.
	NewID func() string
}

// Run applies every compaction step in order.
func Run(doc blockdoc.Document, opts Options) blockdoc.Document {
	gap := opts.MinGap
	if gap <= 0 {
		gap = DefaultMinGap
	}
	doc = DropEmptyBlocks(doc)
	doc = StripSignatureBlocks(doc)
	doc = CompactDenseTimestamps(doc, gap.Milliseconds(), opts.FallbackCreatedAt)
	if opts.NewID != nil {
		doc = AssignIDs(doc, opts.NewID)
	}
	return doc
}

// DropEmptyBlocks removes blocks with no visible text and no annotation.
func DropEmptyBlocks(doc blockdoc.Document) blockdoc.Document {
	out := blockdoc.Document{Blocks: make([]blockdoc.Block, 0, len(doc.Blocks))}
	for _, block := range doc.Blocks {
		if block.IsEmpty() {
			continue
		}
		out.Blocks = append(out.Blocks, block.Clone())
	}
	return out
}

// StripSignatureBlocks removes blocks made only of signature lines and
// separators, and a lone separator block immediately before one.
func StripSignatureBlocks(doc blockdoc.Document) blockdoc.Document {
	out := blockdoc.Document{Blocks: make([]blockdoc.Block, 0, len(doc.Blocks))}
	for _, block := range doc.Blocks {
		if block.FirstMention() == nil && isSignatureBlock(block.Text()) {
			if n := len(out.Blocks); n > 0 && isSeparatorBlock(out.Blocks[n-1]) {
				out.Blocks = out.Blocks[:n-1]
			}
			continue
		}
		out.Blocks = append(out.Blocks, block.Clone())
	}
	return out
}

func isSeparatorBlock(block blockdoc.Block) bool {
	return block.FirstMention() == nil && strings.TrimSpace(block.Text()) == signature.Separator
}

func isSignatureBlock(text string) bool {
	found := false
	for _, line := range strings.Split(blockdoc.NormalizeText(text), "\n") {
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

// CompactDenseTimestamps keeps a block's timestamp only when it is at least
// minGapMs after the previously kept one. A timestamp earlier than the
// previous kept one starts a new entry. When no block is timed and fallback
// is set, the first block receives it.
func CompactDenseTimestamps(doc blockdoc.Document, minGapMs, fallback int64) blockdoc.Document {
	out := doc.Clone()
	if len(out.Blocks) == 0 {
		return out
	}
	if !out.HasBlockTimestamps() {
		if fallback > 0 {
			out.Blocks[0].CreatedAt = fallback
			out.Blocks[0].UpdatedAt = fallback
		}
		return out
	}
	var lastKept int64
	hasKept := false
	for i := range out.Blocks {
		block := &out.Blocks[i]
		if !block.HasTimestamp() {
			block.UpdatedAt = 0
			continue
		}
		delta := block.CreatedAt - lastKept
		if hasKept && delta >= 0 && delta < minGapMs {
			block.ClearTimestamps()
			continue
		}
		lastKept = block.CreatedAt
		hasKept = true
	}
	return out
}

// AssignIDs gives every block without an id a fresh one.
func AssignIDs(doc blockdoc.Document, newID func() string) blockdoc.Document {
	out := doc.Clone()
	for i := range out.Blocks {
		if out.Blocks[i].ID == "" {
			out.Blocks[i].ID = newID()
		}
	}
	return out
}
