package normalize

import (
	"strings"
	"time"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/signature"
	"eventlog/api/internal/timestamps"
)

// parseTimestampedText splits text into blocks at lines that begin with a
// timestamp. Text after the timestamp and the following lines up to the next
// timestamp line form one block. Lines before the first timestamp form an
// untimed block stamped with preambleAt.
func parseTimestampedText(text string, loc *time.Location, preambleAt int64) blockdoc.Document {
	var (
		blocks  []blockdoc.Block
		current []string
		stamp   int64
		started bool
	)
	flush := func() {
		body := blockdoc.NormalizeText(strings.Join(current, "\n"))
		if body != "" {
			at := stamp
			if !started {
				at = preambleAt
			}
			blocks = append(blocks, blockdoc.NewParagraph("", body, at))
		}
		current = current[:0]
	}
	for _, line := range strings.Split(signature.Strip(text), "\n") {
		if ts, rest, ok := timestamps.LeadingTimestamp(line, loc); ok {
			flush()
			stamp, started = ts, true
			if rest != "" {
				current = append(current, rest)
			}
			continue
		}
		current = append(current, line)
	}
	flush()
	return blockdoc.Document{Blocks: blocks}
}

// plainDocument is the single-block form of untimed text.
func plainDocument(text string) blockdoc.Document {
	body := blockdoc.NormalizeText(signature.Strip(text))
	if body == "" {
		return blockdoc.Document{}
	}
	return blockdoc.Document{Blocks: []blockdoc.Block{blockdoc.NewParagraph("", body, 0)}}
}

// carryIDs gives parsed blocks the id of the previous block with the same
// text and creation instant, or the same text and no instant.
func carryIDs(doc blockdoc.Document, previous *blockdoc.Document) blockdoc.Document {
	if previous == nil || len(previous.Blocks) == 0 {
		return doc
	}
	type key struct {
		text string
		at   int64
	}
	known := make(map[key][]string, len(previous.Blocks))
	for _, block := range previous.Blocks {
		if block.ID == "" {
			continue
		}
		k := key{blockdoc.NormalizeText(block.Text()), block.CreatedAt}
		known[k] = append(known[k], block.ID)
	}
	out := doc.Clone()
	for i := range out.Blocks {
		block := &out.Blocks[i]
		if block.ID != "" {
			continue
		}
		text := blockdoc.NormalizeText(block.Text())
		for _, k := range []key{{text, block.CreatedAt}, {text, 0}} {
			if ids := known[k]; len(ids) > 0 {
				block.ID = ids[0]
				known[k] = ids[1:]
				break
			}
		}
	}
	return out
}
