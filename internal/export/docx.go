package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// pandocDOCX returns a converter that pipes the page through pandoc.
func pandocDOCX(binary string) converter {
	return func(ctx context.Context, html, title string) (*Result, error) {
		path, err := exec.LookPath(binary)
		if err != nil {
			return nil, fmt.Errorf("%w: %s not on PATH", ErrDOCXDependencyMissing, binary)
		}
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, path, "-f", "html", "-t", "docx", "--standalone", "--metadata", "title="+title, "-o", "-")
		cmd.Stdin = strings.NewReader(html)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return nil, fmt.Errorf("pandoc exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
			}
			return nil, fmt.Errorf("run pandoc: %w", err)
		}
		return &Result{Data: stdout.Bytes(), Filename: sanitizeFilename(title) + ".docx", MimeType: docxMime}, nil
	}
}
