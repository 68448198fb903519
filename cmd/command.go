package cmd

import (
	"errors"
	"fmt"

	"github.com/psds-microservice/onair-service/internal/database"
	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command [name] [args]",
	Short: "Run one-time command (migrate, migrate-create <name>, seed)",
	RunE:  runCommand,
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		fmt.Fprintln(out, "available: migrate, migrate-create <name>, seed")
		return nil
	}
	switch args[0] {
	case "migrate":
		return runMigrateUp(cmd, nil)
	case "migrate-create":
		name := ""
		if len(args) > 1 {
			name = args[1]
		} else {
			fmt.Fprint(out, "Enter migration name: ")
			_, _ = fmt.Fscanln(cmd.InOrStdin(), &name)
		}
		if name == "" {
			return errors.New("migration name required")
		}
		return database.CreateMigration(name)
	case "seed":
		return runSeed(cmd, nil)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}
