package blockdoc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses runs", "a  \t b", "a b"},
		{"nbsp", "a\u00a0b", "a b"},
		{"keeps inner breaks", "  first \n\n second  ", "first\n\nsecond"},
		{"drops outer blank lines", "\n\nbody\n\n", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestHintOf(t *testing.T) {
	assert.Equal(t, Hint{}, HintOf("   "))
	assert.Equal(t, Hint{S: "abc", E: "abc", L: 3}, HintOf("abc"))
	assert.Equal(t, Hint{S: "hello", E: "world", L: 11}, HintOf("hello world"))

	cjk := HintOf("今天去买牛奶和面包")
	assert.Equal(t, "今天去买牛", cjk.S)
	assert.Equal(t, "牛奶和面包", cjk.E)
	assert.Equal(t, 9, cjk.L)

	// Astral characters occupy two UTF-16 units.
	assert.Equal(t, 2, UnitLen("😀"))
	assert.Equal(t, 4, HintOf("😀😀").L)
}

func TestBlockIsEmpty(t *testing.T) {
	assert.True(t, NewParagraph("b1", " \n ", 0).IsEmpty())
	assert.False(t, NewParagraph("b1", "x", 0).IsEmpty())

	mentionOnly := Block{Children: []Inline{{Text: "", Mention: &Annotation{Type: "tag", TargetID: "t1"}}}}
	assert.False(t, mentionOnly.IsEmpty())
}

func TestBlockSetTextKeepsMention(t *testing.T) {
	block := Block{Children: []Inline{
		{Text: "see "},
		{Text: "#work", Mention: &Annotation{Type: "tag", TargetID: "t1", TargetName: "work"}},
	}}
	block.SetText("rewritten")
	require.Len(t, block.Children, 1)
	assert.Equal(t, "rewritten", block.Text())
	require.NotNil(t, block.Children[0].Mention)
	assert.Equal(t, "t1", block.Children[0].Mention.TargetID)
}

func TestDocumentJSON(t *testing.T) {
	doc := Document{Blocks: []Block{
		NewParagraph("b1", "Buy milk", 1740790800000),
		{ID: "b2", Children: []Inline{{Text: "Title", Bold: true}}, Level: 2},
	}}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"paragraph"`)
	assert.Contains(t, string(raw), `"type":"heading"`)

	var decoded Document
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, doc.Equal(decoded))
	assert.Equal(t, doc.Fingerprint(), decoded.Fingerprint())

	empty, err := json.Marshal(Document{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := Document{Blocks: []Block{NewParagraph("b1", "one", 1)}}
	b := a.Clone()
	b.Blocks[0].SetText("two")
	assert.Len(t, a.Fingerprint(), 16)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "one", a.Blocks[0].Text())
}

func TestTimestampBounds(t *testing.T) {
	doc := Document{Blocks: []Block{
		{CreatedAt: 2000, UpdatedAt: 5000},
		{},
		{CreatedAt: 1000},
	}}
	earliest, latest := doc.TimestampBounds()
	assert.Equal(t, int64(1000), earliest)
	assert.Equal(t, int64(5000), latest)

	log := NewEventLog(Document{Blocks: []Block{NewParagraph("b1", "a", 1), NewParagraph("b2", "b", 0)}}, "<p>a</p>", 1, 1)
	assert.Equal(t, "a\nb", log.PlainText)
}
