package compact

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlog/api/internal/blockdoc"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli()

func at(d time.Duration) int64 {
	return t0 + d.Milliseconds()
}

func para(id, text string, ts int64) blockdoc.Block {
	return blockdoc.NewParagraph(id, text, ts)
}

func TestFiveMinuteRule(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		para("a", "first", at(0)),
		para("b", "second", at(2*time.Minute)),
		para("c", "third", at(10*time.Minute)),
	}}
	got := CompactDenseTimestamps(doc, DefaultMinGap.Milliseconds(), 0)
	require.Len(t, got.Blocks, 3)
	assert.Equal(t, at(0), got.Blocks[0].CreatedAt)
	assert.False(t, got.Blocks[1].HasTimestamp())
	assert.Zero(t, got.Blocks[1].UpdatedAt)
	assert.Equal(t, at(10*time.Minute), got.Blocks[2].CreatedAt)
	assert.Equal(t, "second", got.Blocks[1].Text())

	assert.Equal(t, at(2*time.Minute), doc.Blocks[1].CreatedAt, "input must not be mutated")
}

func TestGapMeasuredFromLastKept(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		para("a", "1", at(0)),
		para("b", "2", at(3*time.Minute)),
		para("c", "3", at(6*time.Minute)),
		para("d", "4", at(9*time.Minute)),
	}}
	got := CompactDenseTimestamps(doc, DefaultMinGap.Milliseconds(), 0)
	assert.True(t, got.Blocks[0].HasTimestamp())
	assert.False(t, got.Blocks[1].HasTimestamp())
	assert.True(t, got.Blocks[2].HasTimestamp())
	assert.False(t, got.Blocks[3].HasTimestamp())
}

func TestOutOfOrderStartsNewEntry(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		para("a", "later", at(time.Hour)),
		para("b", "earlier", at(time.Minute)),
	}}
	got := CompactDenseTimestamps(doc, DefaultMinGap.Milliseconds(), 0)
	assert.True(t, got.Blocks[1].HasTimestamp())
}

func TestFallbackForUntimedDocument(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{para("a", "x", 0), para("b", "y", 0)}}
	got := CompactDenseTimestamps(doc, DefaultMinGap.Milliseconds(), t0)
	assert.Equal(t, t0, got.Blocks[0].CreatedAt)
	assert.False(t, got.Blocks[1].HasTimestamp())

	untouched := CompactDenseTimestamps(doc, DefaultMinGap.Milliseconds(), 0)
	assert.False(t, untouched.HasBlockTimestamps())
}

func TestDropEmptyBlocks(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		para("a", "  ", 0),
		para("b", "keep", 0),
		{ID: "c", Children: []blockdoc.Inline{{Mention: &blockdoc.Annotation{Type: "event", TargetID: "e1"}}}},
		{ID: "d"},
	}}
	got := DropEmptyBlocks(doc)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "b", got.Blocks[0].ID)
	assert.Equal(t, "c", got.Blocks[1].ID)
}

func TestStripSignatureBlocks(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		para("a", "body", 0),
		para("b", "---", 0),
		para("c", "由 🔮 4DNote 创建于 2025-03-01 09:00:00", 0),
		para("d", "---\n由 📧 Outlook 最后修改于 2025-03-01 09:10:00", 0),
		para("e", "---", 0),
		para("f", "a horizontal rule above is content", 0),
	}}
	got := StripSignatureBlocks(doc)
	ids := make([]string, 0, len(got.Blocks))
	for _, b := range got.Blocks {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"a", "e", "f"}, ids)
}

func TestRunIsIdempotent(t *testing.T) {
	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	docs := []blockdoc.Document{
		{Blocks: []blockdoc.Block{
			para("", "first", at(0)),
			para("", " ", at(time.Minute)),
			para("", "second", at(2*time.Minute)),
			para("", "third", at(10*time.Minute)),
			para("", "---", 0),
			para("", "由 🔮 4DNote 创建于 2025-03-01 09:00:00", 0),
		}},
		{Blocks: []blockdoc.Block{para("", "untimed", 0), para("x", "other", 0)}},
		{},
	}
	for i, doc := range docs {
		opts := Options{FallbackCreatedAt: t0, NewID: newID}
		once := Run(doc, opts)
		twice := Run(once, opts)
		assert.True(t, once.Equal(twice), "document %d", i)
		for _, b := range once.Blocks {
			assert.NotEmpty(t, b.ID)
		}
	}
}

func TestDenseBurstScenario(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		para("a", "Buy milk", at(0)),
		para("b", "Call Alice", at(2*time.Minute)),
	}}
	got := Run(doc, Options{})
	require.Len(t, got.Blocks, 2)
	assert.True(t, got.Blocks[0].HasTimestamp())
	assert.False(t, got.Blocks[1].HasTimestamp())
}
