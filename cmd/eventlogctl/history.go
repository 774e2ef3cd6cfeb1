package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"eventlog/api/internal/app"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history <record-id>",
	Short: "Show the version history of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(cmd.Context(), func(c *app.Components) error {
			commits, err := c.History.History(args[0], historyLimit)
			if err != nil {
				return err
			}
			if historyJSON {
				return printJSON(commits)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HASH\tWHEN\tAUTHOR\t+\t-\t~\tMESSAGE")
			for _, commit := range commits {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					commit.Hash,
					commit.CreatedAt.In(c.Session.Location()).Format("2006-01-02 15:04:05"),
					commit.Author,
					commit.Added,
					commit.Removed,
					commit.Changed,
					commit.Message,
				)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of commits")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output in JSON format")
}
