package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// chromeBinaries are the executables probed for before a PDF run.
var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"}

// Paper is a page size in inches.
type Paper struct {
	Width, Height, Margin float64
}

var PaperA4 = Paper{Width: 8.27, Height: 11.69, Margin: 0.75}

const pdfTimeout = 30 * time.Second

func haveChrome() bool {
	for _, name := range chromeBinaries {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

// printPDF returns a converter that prints through headless Chrome.
func printPDF(paper Paper) converter {
	return func(parent context.Context, html, title string) (*Result, error) {
		if !haveChrome() {
			return nil, fmt.Errorf("%w: no chrome or chromium binary on PATH", ErrPDFDependencyMissing)
		}
		ctx, cancel := context.WithTimeout(parent, pdfTimeout)
		defer cancel()

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...)
		defer cancelAlloc()
		taskCtx, cancelTask := chromedp.NewContext(allocCtx)
		defer cancelTask()

		var data []byte
		err := chromedp.Run(taskCtx,
			chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
			chromedp.WaitReady("body"),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				data, _, err = page.PrintToPDF().
					WithPrintBackground(true).
					WithPaperWidth(paper.Width).
					WithPaperHeight(paper.Height).
					WithMarginTop(paper.Margin).
					WithMarginBottom(paper.Margin).
					WithMarginLeft(paper.Margin).
					WithMarginRight(paper.Margin).
					Do(ctx)
				return err
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("print pdf: %w", err)
		}
		return &Result{Data: data, Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}
}

// percentEncodeForDataURL escapes every byte outside the unreserved set.
// Spaces become %20, never +.
func percentEncodeForDataURL(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

const maxFilename = 50

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces
// into '-' and drops the rest.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if b.Len() == maxFilename {
			break
		}
		switch {
		case r < 128 && (isUnreserved(byte(r)) && r != '.' && r != '~'):
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "eventlog"
	}
	return b.String()
}
