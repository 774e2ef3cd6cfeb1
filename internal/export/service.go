package export

import (
	"context"
	"fmt"
	"html/template"
	"path"
	"time"

	"eventlog/api/internal/blockdoc"
	"eventlog/api/internal/gitrepo"
	"eventlog/api/internal/htmlbridge"
	"eventlog/api/internal/signature"
	"eventlog/api/internal/store"
)

// RecordSource loads the current EventLog of a record.
type RecordSource interface {
	GetRecord(ctx context.Context, id string) (*store.Envelope, error)
}

// SnapshotSource loads a historical version.
type SnapshotSource interface {
	SnapshotByHash(recordID, hash string) (gitrepo.Snapshot, error)
}

// Archiver keeps a copy of every archived export.
type Archiver interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type converter func(ctx context.Context, html, title string) (*Result, error)

// Service provides document export functionality
type Service struct {
	records  RecordSource
	history  SnapshotSource
	archiver Archiver
	sig      *signature.Codec
	now      func() time.Time
	pdf      converter
	docx     converter
}

// NewService creates an export service. history and archiver may be nil.
func NewService(records RecordSource, history SnapshotSource, archiver Archiver, loc *time.Location) *Service {
	return &Service{
		records:  records,
		history:  history,
		archiver: archiver,
		sig:      signature.NewCodec(loc),
		now:      time.Now,
		pdf:      printPDF(PaperA4),
		docx:     pandocDOCX("pandoc"),
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	log, version, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = "EventLog " + req.RecordID
	}

	html, err := RenderDocumentHTML(s.templateData(req.RecordID, version, title, log))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF, "":
		result, err = s.pdf(ctx, html, title)
	case FormatDOCX:
		result, err = s.docx(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	if req.Archive && s.archiver != nil {
		key := archiveKey(req.RecordID, version, s.now(), result.Filename)
		if err := s.archiver.Put(ctx, key, result.Data, result.MimeType); err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
		result.ArchiveKey = key
	}
	return result, nil
}

func (s *Service) load(ctx context.Context, req Request) (blockdoc.EventLog, string, error) {
	if req.Version != "" && req.Version != "latest" {
		if s.history == nil {
			return blockdoc.EventLog{}, "", fmt.Errorf("%w: history is not enabled", ErrContentUnavailable)
		}
		snapshot, err := s.history.SnapshotByHash(req.RecordID, req.Version)
		if err != nil {
			return blockdoc.EventLog{}, "", fmt.Errorf("%w: %v", ErrContentUnavailable, err)
		}
		log := blockdoc.NewEventLog(snapshot.Document, "", snapshot.CreatedAt, snapshot.UpdatedAt)
		log.CreatorOrigin, log.ModifierOrigin = snapshot.Creator, snapshot.Modifier
		return log, req.Version, nil
	}

	env, err := s.records.GetRecord(ctx, req.RecordID)
	if err != nil {
		return blockdoc.EventLog{}, "", fmt.Errorf("get record: %w", err)
	}
	if env == nil {
		return blockdoc.EventLog{}, "", fmt.Errorf("%w: record %s not found", ErrContentUnavailable, req.RecordID)
	}
	return env.Log, fmt.Sprintf("v%d", env.Version), nil
}

func (s *Service) templateData(recordID, version, title string, log blockdoc.EventLog) TemplateData {
	data := TemplateData{
		Title:      title,
		RecordID:   recordID,
		Version:    version,
		BlockCount: len(log.Document.Blocks),
		Entries:    make([]TemplateEntry, 0, len(log.Document.Blocks)),
		ExportedAt: s.now().In(s.sig.Location()),
	}
	for _, block := range log.Document.Blocks {
		entry := TemplateEntry{
			// ToHTML escapes text content.
			HTML: template.HTML(htmlbridge.ToHTML(blockdoc.Document{Blocks: []blockdoc.Block{block}})),
		}
		if block.CreatedAt > 0 {
			entry.Time = signature.FormatTime(block.CreatedAt, s.sig.Location())
		}
		data.Entries = append(data.Entries, entry)
	}
	data.Signature = s.sig.Lines(signature.Meta{
		CreatorOrigin:  signature.Origin(log.CreatorOrigin),
		CreatedAt:      log.CreatedAt,
		ModifierOrigin: signature.Origin(log.ModifierOrigin),
		UpdatedAt:      log.UpdatedAt,
	})
	return data
}

func archiveKey(recordID, version string, at time.Time, filename string) string {
	return path.Join("exports", sanitizeFilename(recordID), at.UTC().Format("20060102T150405Z")+"-"+sanitizeFilename(version)+"-"+filename)
}
