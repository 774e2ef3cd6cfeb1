package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"eventlog/api/internal/meta"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DirTransport writes each outbound body to a directory: <id>.html holds
// the body, <id>.json the outbound envelope. Files are replaced atomically.
type DirTransport struct {
	dir string
}

func NewDirTransport(dir string) (*DirTransport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}
	return &DirTransport{dir: dir}, nil
}

func (t *DirTransport) Dir() string {
	return t.dir
}

type outboxEnvelope struct {
	RecordID string        `json:"recordId"`
	Subject  string        `json:"subject,omitempty"`
	Written  time.Time     `json:"written"`
	Outbound meta.Outbound `json:"outbound"`
}

func (t *DirTransport) Deliver(ctx context.Context, recordID, subject string, out meta.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := FileName(recordID)
	if err := writeAtomic(filepath.Join(t.dir, base+".html"), []byte(out.Body)); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(outboxEnvelope{
		RecordID: recordID,
		Subject:  subject,
		Written:  time.Now().UTC(),
		Outbound: out,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}
	return writeAtomic(filepath.Join(t.dir, base+".json"), raw)
}

// FileName maps a record id to a safe file base name.
func FileName(recordID string) string {
	name := unsafeFileChars.ReplaceAllString(recordID, "_")
	if name == "" || name == "." || name == ".." {
		return "record"
	}
	return name
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".outbox-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// MultiTransport delivers to every transport in order and stops at the
// first failure.
type MultiTransport []Transport

func (m MultiTransport) Deliver(ctx context.Context, recordID, subject string, out meta.Outbound) error {
	for _, t := range m {
		if err := t.Deliver(ctx, recordID, subject, out); err != nil {
			return err
		}
	}
	return nil
}
