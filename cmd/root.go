package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "onair-service",
	Short: "On-air service: alumni rooms, live sessions, airtime ledger",
	Long:  `HTTP + WebSocket API. Commands: api, migrate, seed, token.`,
	RunE:  runAPI, // default: run API (same as "onair-service api")
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute runs the root command and returns the error (for main to log.Fatal).
func Execute() error {
	return rootCmd.Execute()
}
