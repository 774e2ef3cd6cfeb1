package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"eventlog/api/internal/app"
	"eventlog/api/internal/inbox"
	"eventlog/api/internal/normalize"
	"eventlog/api/internal/store"
	"eventlog/api/internal/syncer"
)

var (
	normalizeSave bool
	normalizeHTML bool
)

type normalizedFile struct {
	File     string              `json:"file"`
	RecordID string              `json:"recordId,omitempty"`
	Shape    normalize.Shape     `json:"shape"`
	Warnings []normalize.Warning `json:"warnings,omitempty"`
	Blocks   int                 `json:"blocks"`
	Created  int64               `json:"createdAt,omitempty"`
	Updated  int64               `json:"updatedAt,omitempty"`
	Version  int64               `json:"version,omitempty"`
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <glob>...",
	Short: "Normalize files into canonical EventLogs",
	Long: `Normalize every file matched by the globs (** is supported). The file
modification time is the fallback instant for content with no timestamps.
With --save each file is stored under its base name as record id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandGlobs(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return fmt.Errorf("no files match %s", strings.Join(args, " "))
		}
		return withComponents(cmd.Context(), func(c *app.Components) error {
			for _, file := range files {
				out, err := normalizeFile(cmd, c, file)
				if err != nil {
					log.Error().Err(err).Str("file", file).Msg("normalize failed")
					continue
				}
				if normalizeHTML {
					continue
				}
				if err := printJSON(out); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func normalizeFile(cmd *cobra.Command, c *app.Components, file string) (normalizedFile, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return normalizedFile{}, err
	}
	info, err := os.Stat(file)
	if err != nil {
		return normalizedFile{}, err
	}
	fallback := info.ModTime().UnixMilli()
	out := normalizedFile{File: file}

	if normalizeSave {
		out.RecordID = inbox.RecordID(file)
		saved, err := c.Syncer.Save(cmd.Context(), syncer.SaveRequest{
			RecordID:          out.RecordID,
			Value:             string(raw),
			Version:           store.AnyVersion,
			FallbackCreatedAt: fallback,
			FallbackUpdatedAt: fallback,
		})
		if err != nil {
			return normalizedFile{}, err
		}
		out.Version = saved.Version
		fill(&out, saved.Result)
		return out, nil
	}

	res, err := c.Normalizer.NormalizeValue(string(raw), normalize.Request{
		FallbackCreatedAt: fallback,
		FallbackUpdatedAt: fallback,
	})
	if err != nil {
		return normalizedFile{}, err
	}
	if normalizeHTML {
		fmt.Fprintln(cmd.OutOrStdout(), res.Log.HTML)
	}
	fill(&out, res)
	return out, nil
}

func fill(out *normalizedFile, res normalize.Result) {
	out.Shape = res.Shape
	out.Warnings = res.Warnings
	out.Blocks = res.Log.Document.Len()
	out.Created = res.Log.CreatedAt
	out.Updated = res.Log.UpdatedAt
}

// expandGlobs resolves each pattern, keeping regular files in first-seen
// order.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if seen[match] {
				continue
			}
			if info, err := os.Stat(match); err != nil || info.IsDir() {
				continue
			}
			seen[match] = true
			files = append(files, match)
		}
	}
	return files, nil
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
	normalizeCmd.Flags().BoolVar(&normalizeSave, "save", false, "Store each file as a record named after the file")
	normalizeCmd.Flags().BoolVar(&normalizeHTML, "html", false, "Print the canonical HTML instead of a JSON summary")
}
