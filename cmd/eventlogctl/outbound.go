package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eventlog/api/internal/app"
)

var (
	outboundSubject string
	outboundDryRun  bool
)

var outboundCmd = &cobra.Command{
	Use:   "outbound <record-id>",
	Short: "Send a record through the configured transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID := args[0]
		return withComponents(cmd.Context(), func(c *app.Components) error {
			if outboundDryRun {
				out, err := c.Syncer.Render(cmd.Context(), recordID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out.Body)
				return nil
			}
			res, err := c.Syncer.Outbound(cmd.Context(), recordID, outboundSubject)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"recordId": res.RecordID,
				"sequence": res.Sequence,
				"version":  res.Version,
				"bytes":    len(res.Outbound.Body),
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(outboundCmd)
	outboundCmd.Flags().StringVar(&outboundSubject, "subject", "", "Message subject (default \"EventLog <id>\")")
	outboundCmd.Flags().BoolVar(&outboundDryRun, "dry-run", false, "Print the outbound body without sending it")
}
