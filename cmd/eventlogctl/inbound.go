package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eventlog/api/internal/app"
	"eventlog/api/internal/syncer"
)

var inboundFallback int64

var inboundCmd = &cobra.Command{
	Use:   "inbound <record-id> <file>",
	Short: "Apply a returned body to a record",
	Long: `Normalize the file against the last sent baseline of the record and
store the result. A body that is this process's own unmodified push is
skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read inbound body: %w", err)
		}
		return withComponents(cmd.Context(), func(c *app.Components) error {
			res, err := c.Syncer.Inbound(cmd.Context(), syncer.InboundRequest{
				RecordID:          args[0],
				Body:              string(raw),
				FallbackCreatedAt: inboundFallback,
				FallbackUpdatedAt: inboundFallback,
			})
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	rootCmd.AddCommand(inboundCmd)
	inboundCmd.Flags().Int64Var(&inboundFallback, "fallback", 0, "Fallback instant in epoch milliseconds for bodies without timestamps")
}
