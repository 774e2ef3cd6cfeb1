package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlog/api/internal/blockdoc"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

func hints(texts ...string) []blockdoc.Hint {
	out := make([]blockdoc.Hint, len(texts))
	for i, text := range texts {
		out[i] = blockdoc.HintOf(text)
	}
	return out
}

func entries(texts ...string) []Entry {
	out := make([]Entry, len(texts))
	for i, text := range texts {
		out[i] = Entry{ID: fmt.Sprintf("b%d", i), Hint: blockdoc.HintOf(text), CreatedAt: int64(1000 * (i + 1))}
	}
	return out
}

func TestExactMatch(t *testing.T) {
	m := NewMatcher(DefaultThreshold, sequentialIDs())
	got := m.Match(hints("one", "two", "three"), entries("one", "two", "three"))
	require.Len(t, got, 3)
	for i, d := range got {
		assert.Equal(t, KindExact, d.Kind)
		assert.Equal(t, i, d.HTMLIndex)
		assert.Equal(t, i, d.MetaIndex)
		assert.Equal(t, fmt.Sprintf("b%d", i), d.ID)
	}
}

func TestDuplicateParagraphsPairInOrder(t *testing.T) {
	m := NewMatcher(DefaultThreshold, sequentialIDs())
	got := m.Match(hints("same", "same"), entries("same", "same"))
	assert.Equal(t, 0, got[0].MetaIndex)
	assert.Equal(t, 1, got[1].MetaIndex)
}

func TestSandwichInference(t *testing.T) {
	m := NewMatcher(DefaultThreshold, sequentialIDs())
	meta := entries("The morning standup went well", "Budget review notes", "Follow up with design team")
	paragraphs := hints("The morning standup went well", "Completely different words here", "Follow up with design team")

	require.Less(t, Score(paragraphs[1], meta[1].Hint), DefaultThreshold)

	got := m.Match(paragraphs, meta)
	require.Len(t, got, 3)
	assert.Equal(t, KindExact, got[0].Kind)
	assert.Equal(t, KindSandwich, got[1].Kind)
	assert.Equal(t, 1, got[1].MetaIndex)
	assert.Equal(t, "b1", got[1].ID)
	assert.Equal(t, KindExact, got[2].Kind)
}

func TestSandwichNeedsSingleGap(t *testing.T) {
	m := NewMatcher(DefaultThreshold, sequentialIDs())
	meta := entries("anchor one here", "alpha", "beta", "anchor two here")
	paragraphs := hints("anchor one here", "xxxxxxxxxxxxxxxxx", "anchor two here")
	got := m.Match(paragraphs, meta)
	summary := Summarize(got)
	assert.Equal(t, 0, summary.Sandwich)
	assert.Equal(t, 1, summary.Insert)
	assert.Equal(t, 2, summary.Delete)
}

func TestFuzzySingleTrailingEdit(t *testing.T) {
	score := Score(blockdoc.HintOf("hello world"), blockdoc.HintOf("hello worle"))
	assert.GreaterOrEqual(t, score, 90.0)

	m := NewMatcher(DefaultThreshold, sequentialIDs())
	got := m.Match(hints("hello worle"), entries("hello world"))
	require.Len(t, got, 1)
	assert.Equal(t, KindFuzzy, got[0].Kind)
	assert.Equal(t, "b0", got[0].ID)
}

func TestDisjointTextsInsertAndDelete(t *testing.T) {
	assert.Less(t, Score(blockdoc.HintOf("apples and pears"), blockdoc.HintOf("zzzz qqqq")), 50.0)

	m := NewMatcher(DefaultThreshold, sequentialIDs())
	got := m.Match(hints("zzzz qqqq"), entries("apples and pears"))
	require.Len(t, got, 2)
	assert.Equal(t, Decision{Kind: KindInsert, HTMLIndex: 0, MetaIndex: -1, ID: "new-1"}, got[0])
	assert.Equal(t, Decision{Kind: KindDelete, HTMLIndex: -1, MetaIndex: 0, ID: "b0"}, got[1])
}

func TestFuzzyPrefersHighestScore(t *testing.T) {
	m := NewMatcher(DefaultThreshold, sequentialIDs())
	meta := entries("shopping list for today")
	paragraphs := hints("shopping list for tomorrow", "shopping list for todax")
	got := m.Match(paragraphs, meta)
	require.Len(t, got, 2)
	assert.Equal(t, KindInsert, got[0].Kind)
	assert.Equal(t, KindFuzzy, got[1].Kind)
	assert.Equal(t, 0, got[1].MetaIndex)
}

func TestThresholdIsConfigurable(t *testing.T) {
	strict := NewMatcher(95, sequentialIDs())
	got := strict.Match(hints("hello worle"), entries("hello world"))
	assert.Equal(t, KindInsert, got[0].Kind)
	assert.Equal(t, 95.0, strict.Threshold())
	assert.Equal(t, DefaultThreshold, NewMatcher(0, nil).Threshold())
}

func TestMatchIsDeterministic(t *testing.T) {
	meta := entries("a first paragraph", "second one", "third paragraph text", "fourth")
	paragraphs := hints("a first paragraph!", "brand new", "third paragraph test", "fourth")
	first := NewMatcher(DefaultThreshold, sequentialIDs()).Match(paragraphs, meta)
	second := NewMatcher(DefaultThreshold, sequentialIDs()).Match(paragraphs, meta)
	assert.Equal(t, first, second)
}

func TestApplyMergesEntries(t *testing.T) {
	bullet := 2
	meta := []Entry{
		{ID: "b0", Hint: blockdoc.HintOf("kept"), CreatedAt: 100, UpdatedAt: 200, Bullet: &bullet,
			Mention: &blockdoc.Annotation{Type: "tag", TargetID: "t1"}},
		{ID: "b1", Hint: blockdoc.HintOf("gone"), CreatedAt: 300},
	}
	blocks := []blockdoc.Block{
		blockdoc.NewParagraph("", "kept", 0),
		blockdoc.NewParagraph("", "added", 0),
	}
	m := NewMatcher(DefaultThreshold, sequentialIDs())
	decisions := m.Match([]blockdoc.Hint{blockdoc.HintOf("kept"), blockdoc.HintOf("added")}, meta)
	doc := Apply(blocks, meta, decisions, 900)

	require.Len(t, doc.Blocks, 2)
	kept := doc.Blocks[0]
	assert.Equal(t, "b0", kept.ID)
	assert.Equal(t, int64(100), kept.CreatedAt)
	assert.Equal(t, int64(200), kept.UpdatedAt)
	assert.True(t, kept.Bullet)
	assert.Equal(t, 2, kept.BulletLevel)
	require.NotNil(t, kept.FirstMention())
	assert.Equal(t, "t1", kept.FirstMention().TargetID)

	added := doc.Blocks[1]
	assert.Equal(t, "new-1", added.ID)
	assert.False(t, added.HasTimestamp())
	assert.Equal(t, "added", added.Text())

	summary := Summarize(decisions)
	assert.Equal(t, Summary{Exact: 1, Insert: 1, Delete: 1}, summary)
	assert.Equal(t, 1, summary.Matched())
}

func TestApplyStampsEditedPairs(t *testing.T) {
	meta := []Entry{
		{ID: "b0", Hint: blockdoc.HintOf("before"), CreatedAt: 100, UpdatedAt: 100},
		{ID: "b1", Hint: blockdoc.HintOf("call the plumber"), CreatedAt: 200, UpdatedAt: 250},
		{ID: "b2", Hint: blockdoc.HintOf("after"), CreatedAt: 300, UpdatedAt: 300},
	}
	texts := []string{"before", "rewritten entirely", "after"}
	blocks := make([]blockdoc.Block, len(texts))
	paragraphs := make([]blockdoc.Hint, len(texts))
	for i, text := range texts {
		blocks[i] = blockdoc.NewParagraph("", text, 0)
		paragraphs[i] = blockdoc.HintOf(text)
	}
	decisions := NewMatcher(DefaultThreshold, sequentialIDs()).Match(paragraphs, meta)
	require.Equal(t, KindSandwich, decisions[1].Kind)

	doc := Apply(blocks, meta, decisions, 900)
	require.Len(t, doc.Blocks, 3)
	assert.Equal(t, "b1", doc.Blocks[1].ID)
	assert.Equal(t, int64(200), doc.Blocks[1].CreatedAt)
	assert.Equal(t, int64(900), doc.Blocks[1].UpdatedAt)
	assert.Equal(t, int64(100), doc.Blocks[0].UpdatedAt)
	assert.Equal(t, int64(300), doc.Blocks[2].UpdatedAt)

	doc = Apply(blocks, meta, decisions, 0)
	assert.Equal(t, int64(250), doc.Blocks[1].UpdatedAt)
}

func TestEntriesFor(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		{ID: "x", Children: []blockdoc.Inline{{Text: "hello"}}, CreatedAt: 5, Bullet: true},
	}}
	got := EntriesFor(doc)
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)
	assert.Equal(t, blockdoc.Hint{S: "hello", E: "hello", L: 5}, got[0].Hint)
	require.NotNil(t, got[0].Bullet)
	assert.Equal(t, 0, *got[0].Bullet)
}
