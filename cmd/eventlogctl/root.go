package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eventlog/api/internal/app"
	"eventlog/api/internal/config"
	"eventlog/api/internal/logger"
)

var (
	configPath  string
	databaseURL string
	verbose     bool

	cfg config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "eventlogctl",
	Short: "Normalize, sync and inspect EventLog records",
	Long: `eventlogctl works on the same record store as the EventLog API.
It normalizes files of any supported shape, sends records outbound, applies
returned bodies and shows the version history of a record.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		if databaseURL != "" {
			loaded.DatabaseURL = databaseURL
		}
		level := loaded.LogLevel
		if verbose {
			level = "debug"
		}
		cfg = loaded
		log = logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})
		return nil
	},
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaid on the environment")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database", "", "Record store URL (postgres://, sqlite://)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// withComponents wires the configured backends for the duration of fn.
func withComponents(ctx context.Context, fn func(*app.Components) error) error {
	components, err := app.Wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components)
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
