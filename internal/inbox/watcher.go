// Package inbox watches a directory for returned EventLog bodies and hands
// each settled file to a handler.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"eventlog/api/internal/logger"
)

// DefaultPattern matches the bodies a mail rule or export script drops.
const DefaultPattern = "*.{html,htm,txt,json}"

const defaultDebounce = 200 * time.Millisecond

// Handler processes one file. recordID is the file name without extension.
type Handler func(ctx context.Context, recordID, path string) error

type Options struct {
	// Pattern is matched against the base name. Empty uses DefaultPattern.
	Pattern  string
	Debounce time.Duration
	// ProcessedDir, when set, receives each file after a successful run.
	ProcessedDir string
	Logger       *logger.Logger
}

type Watcher struct {
	dir      string
	pattern  string
	debounce time.Duration
	done     string
	handler  Handler
	log      *logger.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func New(dir string, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("inbox: handler is required")
	}
	pattern := opts.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("inbox: invalid pattern %q", pattern)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{
		dir:      dir,
		pattern:  pattern,
		debounce: debounce,
		done:     opts.ProcessedDir,
		handler:  handler,
		log:      log.Component("inbox"),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Matches reports whether path is an inbox file.
func (w *Watcher) Matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ok, _ := doublestar.Match(w.pattern, base)
	return ok
}

// Scan handles the files already present in the directory.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !w.Matches(entry.Name()) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// Run watches until ctx is cancelled. Pending debounced files are
// discarded on shutdown; Scan picks them up on the next start.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info().Str("dir", w.dir).Str("pattern", w.pattern).Msg("watching inbox")

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// schedule restarts the debounce timer of path so a file still being
// written is handled once.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok && timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	for path, timer := range w.timers {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) process(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	recordID := RecordID(path)
	if err := w.handler(ctx, recordID, path); err != nil {
		w.log.Error().Err(err).Str("record_id", recordID).Str("file", path).Msg("inbox file failed")
		return
	}
	if w.done == "" {
		return
	}
	if err := os.MkdirAll(w.done, 0o755); err != nil {
		w.log.Warn().Err(err).Msg("create processed dir")
		return
	}
	target := filepath.Join(w.done, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		w.log.Warn().Err(err).Str("file", path).Msg("move processed file")
	}
}

// RecordID is the file base name without its extension.
func RecordID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
