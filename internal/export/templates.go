package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate = template.Must(template.New("document.html").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04") },
}).ParseFS(templateFS, "templates/document.html"))

// TemplateData is the view of one EventLog handed to the document template.
type TemplateData struct {
	Title      string
	RecordID   string
	Version    string
	BlockCount int
	Entries    []TemplateEntry
	Signature  []string
	ExportedAt time.Time
}

// TemplateEntry is one block of the timeline. HTML is produced by the
// block renderer, which escapes text.
type TemplateEntry struct {
	Time string
	HTML template.HTML
}

func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
