package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridgedb/ridge/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ridge",
	Short: "ridge - a storage and transaction core debugging tool",
	Long: `ridge is a single-process page-oriented storage engine with a
durable commit log and deferred-unique-constraint transactions.

This binary is a debugging aid for inspecting a data directory: opening
it, listing table contents, reporting metric snapshots, and checking a
commit log for a clean replay. It is not a client SDK or network server.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("ridge version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "Path to the data directory (required)")
	_ = rootCmd.MarkPersistentFlagRequired("data-dir")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(replayCheckCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
