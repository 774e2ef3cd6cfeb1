package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"eventlog/api/internal/app"
	"eventlog/api/internal/inbox"
	"eventlog/api/internal/syncer"
)

var (
	watchPattern   string
	watchDebounce  time.Duration
	watchProcessed bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Apply returned bodies dropped into a directory",
	Long: `Watch a directory and run every matching file through inbound sync.
The record id is the file name without its extension. Files already present
are applied first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		return withComponents(cmd.Context(), func(c *app.Components) error {
			opts := inbox.Options{
				Pattern:  watchPattern,
				Debounce: watchDebounce,
				Logger:   log,
			}
			if watchProcessed {
				opts.ProcessedDir = filepath.Join(dir, "processed")
			}
			w, err := inbox.New(dir, inboundFile(c.Syncer), opts)
			if err != nil {
				return err
			}
			if err := w.Scan(cmd.Context()); err != nil {
				return err
			}
			return w.Run(cmd.Context())
		})
	},
}

// inboundFile applies one file with its modification time as the fallback
// instant.
func inboundFile(s *syncer.Syncer) inbox.Handler {
	return func(ctx context.Context, recordID, path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		mtime := info.ModTime().UnixMilli()
		res, err := s.Inbound(ctx, syncer.InboundRequest{
			RecordID:          recordID,
			Body:              string(raw),
			FallbackCreatedAt: mtime,
			FallbackUpdatedAt: mtime,
		})
		if err != nil {
			return err
		}
		event := log.Info().Str("record_id", recordID).Int64("version", res.Version)
		if res.Skipped {
			event = event.Str("skipped", res.SkipReason)
		}
		event.Msg("inbox file applied")
		return nil
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchPattern, "pattern", inbox.DefaultPattern, "Glob matched against file names")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 200*time.Millisecond, "Quiet period before a changed file is applied")
	watchCmd.Flags().BoolVar(&watchProcessed, "move-processed", false, "Move applied files into <dir>/processed")
}
