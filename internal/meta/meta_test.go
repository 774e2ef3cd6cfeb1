package meta

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/signature"
)

func sampleDoc() blockdoc.Document {
	return blockdoc.Document{Blocks: []blockdoc.Block{
		blockdoc.NewParagraph("b1", "Buy milk at the corner shop", 1740819600000),
		{ID: "b2", Children: []blockdoc.Inline{
			{Text: "ping "},
			{Text: "#work", Mention: &blockdoc.Annotation{Type: "tag", TargetID: "t1", TargetName: "work"}},
		}, Bullet: true},
		{ID: "b3", Children: []blockdoc.Inline{{Text: "会议记录"}}, Level: 2},
	}}
}

func container(payload string) string {
	return `<p>x</p><div id="4dnote-meta" style="display:none">` + base64.StdEncoding.EncodeToString([]byte(payload)) + `</div>`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec(time.UTC)
	sig := signature.Meta{CreatorOrigin: signature.OriginLocal, CreatedAt: 1740819600000, UpdatedAt: 1740823200000}
	out, err := codec.Encode("evt-1", sampleDoc(), sig, map[string]any{"tab": "tab-1"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Body, `<div class="4dnote-content-wrapper" data-4dnote-version="2">`))
	assert.Contains(t, out.Body, `<div id="4dnote-meta" style="display:none; font-size:0; line-height:0; opacity:0; mso-hide:all;">`+out.MetaBase64+`</div>`)
	assert.Contains(t, out.Body, "<p>---</p>")
	assert.Contains(t, out.Body, "最后修改于")
	assert.Equal(t, out.VisibleHTML, out.Body[len(`<div class="4dnote-content-wrapper" data-4dnote-version="2">`):][:len(out.VisibleHTML)])

	payload, ok := Decode(out.Body)
	require.True(t, ok)
	assert.Equal(t, Version, payload.V)
	assert.Equal(t, "evt-1", payload.ID)
	require.Len(t, payload.Slate.Nodes, 3)

	first := payload.Slate.Nodes[0]
	assert.Equal(t, "b1", first.ID)
	assert.Equal(t, "Buy m", first.S)
	assert.Equal(t, " shop", first.E)
	assert.Equal(t, 27, first.L)
	assert.Equal(t, int64(1740819600000), first.TS)

	second := payload.Slate.Nodes[1]
	require.NotNil(t, second.Bullet)
	assert.Equal(t, 0, *second.Bullet)
	require.NotNil(t, second.Mention)
	assert.Equal(t, "t1", second.Mention.TargetID)

	third := payload.Slate.Nodes[2]
	assert.Equal(t, "会议记录", third.S)
	assert.Equal(t, "会议记录", third.E)
	assert.Equal(t, 4, third.L)
	assert.Equal(t, 2, third.Lvl)

	meta, ok := codec.SignatureMeta(payload)
	require.True(t, ok)
	assert.Equal(t, sig.Normalized(), meta)
	assert.Equal(t, "tab-1", payload.Custom["tab"])

	entries := payload.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, blockdoc.HintOf("Buy milk at the corner shop"), entries[0].Hint)
}

func TestEncodeWithoutSignature(t *testing.T) {
	out, err := NewCodec(time.UTC).Encode("evt-2", blockdoc.Document{}, signature.Meta{}, nil)
	require.NoError(t, err)
	assert.NotContains(t, out.Body, "---")
	payload, ok := Decode(out.Body)
	require.True(t, ok)
	assert.Nil(t, payload.Signature)
	assert.Empty(t, payload.Slate.Nodes)
}

func TestDecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		html string
		want error
	}{
		{"absent", "<p>no payload</p>", ErrNoContainer},
		{"bad base64", `<div id="4dnote-meta">!!!not base64!!!</div>`, ErrMalformed},
		{"not json", container("{nope"), ErrMalformed},
		{"schema violation", container(`{"v":2,"id":"x","slate":{"nodes":[{"l":"long"}]}}`), ErrMalformed},
		{"missing slate", container(`{"v":2,"id":"x"}`), ErrMalformed},
		{"old version", container(`{"v":1,"id":"x","slate":{"nodes":[]}}`), ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeDetailed(tt.html)
			assert.ErrorIs(t, err, tt.want)
			payload, ok := Decode(tt.html)
			assert.False(t, ok)
			assert.Nil(t, payload)
		})
	}
}

func TestDecodeToleratesMangledContainer(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"v":2,"id":"evt","slate":{"nodes":[{"id":"b1","s":"hi","e":"hi","l":2}]}}`))
	wrapped := encoded[:10] + "\r\n  <span>" + encoded[10:20] + "</span>" + encoded[20:]
	body := `<p>hi</p><DIV ID=4dnote-meta style="display:none">` + wrapped + `</DIV>`

	payload, ok := Decode(body)
	require.True(t, ok)
	assert.Equal(t, "b1", payload.Slate.Nodes[0].ID)
}

func TestStripContainer(t *testing.T) {
	body := `<p>keep</p><div id="4dnote-meta" style="display:none">abc</div><p>tail</p>`
	assert.Equal(t, "<p>keep</p><p>tail</p>", StripContainer(body))
}

func TestSignatureMetaLegacyFields(t *testing.T) {
	codec := NewCodec(time.UTC)
	fourDNote := false
	payload := &Payload{V: 2, Signature: &Signature{
		CreatedAt:          "2025-03-01 09:00:00",
		Source:             "outlook",
		FourDNoteSource:    &fourDNote,
		LastModifiedSource: "outlook",
	}}
	meta, ok := codec.SignatureMeta(payload)
	require.True(t, ok)
	assert.Equal(t, signature.OriginExternal, meta.CreatorOrigin)
	assert.Equal(t, signature.OriginExternal, meta.ModifierOrigin)
	assert.Equal(t, meta.CreatedAt, meta.UpdatedAt)

	_, ok = codec.SignatureMeta(&Payload{V: 2})
	assert.False(t, ok)
}
