package htmlbridge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventlog/api/internal/blockdoc"
)

func TestToHTMLFromHTMLRoundTrip(t *testing.T) {
	doc := blockdoc.Document{Blocks: []blockdoc.Block{
		{Children: []blockdoc.Inline{{Text: "Agenda"}}, Level: 2},
		{Children: []blockdoc.Inline{
			{Text: "Hello ", Bold: true},
			{Text: "world & <friends>"},
		}},
		{Children: []blockdoc.Inline{
			{Text: "ping "},
			{Text: "#work", Mention: &blockdoc.Annotation{Type: "tag", TargetID: "t1", TargetName: "work"}},
		}},
		{Children: []blockdoc.Inline{{Text: "first line\nsecond line", Italic: true}}},
		{Children: []blockdoc.Inline{{Text: "item"}}, Bullet: true, BulletLevel: 1},
	}}

	rendered := ToHTML(doc)
	assert.Contains(t, rendered, "<h2>Agenda</h2>")
	assert.Contains(t, rendered, "<strong>Hello </strong>")
	assert.Contains(t, rendered, "&amp; &lt;friends&gt;")
	assert.Contains(t, rendered, `data-bullet-level="1"`)

	back := FromHTML(rendered)
	require.Len(t, back.Blocks, len(doc.Blocks))
	assert.True(t, doc.Equal(back), "got %s", back.PlainText())
}

func TestFromHTMLShapes(t *testing.T) {
	input := `<div>loose <b>text</b></div>
<ul><li>one</li><li><p>two</p><ul><li>nested</li></ul></li></ul>
<p><span class="date-mention" data-date="2025-03-01">Mar 1</span></p>
<p>   </p>
<div id="4dnote-meta" style="display:none">ZZZ</div>
<script>var x = 1;</script>`

	doc := FromHTML(input)
	texts := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		texts = append(texts, b.Text())
	}
	assert.Equal(t, []string{"loose text", "one", "two", "nested", "Mar 1"}, texts)

	assert.True(t, doc.Blocks[1].Bullet)
	assert.Equal(t, 0, doc.Blocks[1].BulletLevel)
	assert.Equal(t, 1, doc.Blocks[3].BulletLevel)
	mention := doc.Blocks[4].FirstMention()
	require.NotNil(t, mention)
	assert.Equal(t, "date", mention.Type)
	assert.Equal(t, "2025-03-01", mention.TargetDate)
}

func TestFromHTMLCollapsesWhitespace(t *testing.T) {
	doc := FromHTML("<p>\n   Buy\n   milk  <br>  now </p>")
	require.Len(t, doc.Blocks, 1)
	assert.Equal(t, "Buy milk\nnow", doc.Blocks[0].Text())
	assert.Equal(t, blockdoc.NormalizeText("Buy   milk \n now"), doc.Blocks[0].Text())
}

func TestExtractText(t *testing.T) {
	text := ExtractText("<p>2025-03-01 09:00:00</p><p>Buy milk</p><div>tail<br>end</div>")
	assert.Equal(t, "2025-03-01 09:00:00\nBuy milk\ntail\nend", text)
}

func TestSanitizeStyleAllowList(t *testing.T) {
	out := Sanitize(`<p style="font-weight:bold; color:red; font-family:Arial">x</p>`)
	assert.Equal(t, `<p style="font-weight:bold">x</p>`, out)
}

func TestFilterStyle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"drops fonts and colours", "font-family:Calibri; color:#333; font-size:11pt", ""},
		{"keeps italic and decoration", "font-style:italic; text-decoration: underline line-through", "font-style:italic; text-decoration:underline line-through"},
		{"light highlight forces black", "background-color: rgb(255, 255, 0)", "background-color:#ffff00; color:#000000"},
		{"dark highlight keeps colour", "background:magenta", "background-color:magenta"},
		{"unknown highlight dropped", "background-color:#123456", ""},
		{"weights", "font-weight:700", "font-weight:700"},
		{"normal weight dropped", "font-weight:400", ""},
		{"important suffix", "font-weight:bold !important", "font-weight:bold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterStyle(tt.in))
		})
	}
}

func TestSanitizeFakeLists(t *testing.T) {
	input := `<p class="MsoListParagraphCxSpFirst" style="mso-list:l0 level1 lfo1"><![if !supportLists]><span style="mso-list:Ignore">1.<span>&nbsp;&nbsp;</span></span><![endif]>First<o:p></o:p></p>
<p class="MsoListParagraphCxSpLast" style="mso-list:l0 level2 lfo1"><![if !supportLists]><span style="mso-list:Ignore">a.</span><![endif]>Second</p>
<p class="MsoNormal">After</p>`

	out := Sanitize(input)
	assert.True(t, strings.HasPrefix(out, "<ol><li>First</li>"), out)
	assert.Contains(t, out, `<li data-bullet-level="1">Second</li></ol>`)
	assert.Contains(t, out, `After`)
	assert.NotContains(t, out, "mso-list")
	assert.NotContains(t, out, "supportLists")

	doc := FromHTML(out)
	require.Len(t, doc.Blocks, 3)
	assert.True(t, doc.Blocks[0].Bullet)
	assert.Equal(t, 1, doc.Blocks[1].BulletLevel)
	assert.False(t, doc.Blocks[2].Bullet)
}

func TestSanitizeBulletsFromSymbolMarker(t *testing.T) {
	input := `<p class="MsoListParagraph" style="mso-list:l1 level1 lfo2"><span style="mso-list:Ignore">·</span>dot</p>`
	assert.Equal(t, "<ul><li>dot</li></ul>", Sanitize(input))
}

func TestSanitizeVendorMarkup(t *testing.T) {
	input := `<html xmlns:o="urn:schemas-microsoft-com:office:office"><body><p>Hi<o:p>&nbsp;</o:p></p><w:sdtPr><w:alias w:val="x"/></w:sdtPr><p><st1:place>Paris</st1:place></p><!-- note --></body></html>`
	out := Sanitize(input)
	assert.Equal(t, "<p>Hi</p><p>Paris</p>", out)
}

func TestSanitizeFontAttributes(t *testing.T) {
	out := Sanitize(`<p><font color="red" face="Arial">t</font></p><table bgcolor="#eee"><tbody><tr><td>c</td></tr></tbody></table>`)
	assert.Equal(t, `<p><font>t</font></p><table><tbody><tr><td>c</td></tr></tbody></table>`, out)
}

func TestSanitizeIsDeterministic(t *testing.T) {
	input := `<p style="background-color:yellow;font-weight:800">a</p><p style="mso-list:l0 level1"><span style="mso-list:Ignore">1.</span>b</p>`
	first := Sanitize(input)
	assert.Equal(t, first, Sanitize(input))
	assert.Equal(t, first, Sanitize(first))
}

func TestDecodeEntities(t *testing.T) {
	assert.Equal(t, "a &lt; b", DecodeEntities("a &amp;amp;amp;lt; b"))
	assert.Equal(t, "a &lt; b", DecodeEntities("a &lt; b"))
	assert.Equal(t, "fish &amp; chips", DecodeEntities("fish &amp; chips"))
	assert.Equal(t, "&#39;", DecodeEntities("&amp;#39;"))
}

func TestStripSignatureElements(t *testing.T) {
	input := `<p>Body</p><p>---</p><p>由 🔮 4DNote 创建于 2025-03-01 09:00:00</p><p>---<br>由 📧 Outlook 最后修改于 2025-03-01 09:10:00</p>`
	assert.Equal(t, "<p>Body</p>", StripSignatureElements(input))

	keep := `<p>---</p><p>not a signature</p>`
	assert.Equal(t, keep, StripSignatureElements(keep))
}
