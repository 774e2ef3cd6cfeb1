// Package export renders an EventLog to a printable document: HTML, PDF
// through headless Chrome, or DOCX through pandoc.
package export

import (
	"errors"
	"fmt"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatHTML, FormatPDF, FormatDOCX:
		return Format(s), nil
	case "":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// Request contains parameters for an export operation
type Request struct {
	RecordID string
	Version  string // empty or "latest" for the stored record, else a history commit hash
	Format   Format
	Title    string
	// Archive uploads the result when an archiver is configured.
	Archive bool
}

// Result contains the export output
type Result struct {
	Data       []byte
	Filename   string
	MimeType   string
	ArchiveKey string
}

var (
	// ErrContentUnavailable indicates the record could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrUnsupportedFormat     = errors.New("unsupported export format")
)
