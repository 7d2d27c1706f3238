package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/svcguard/internal/recovery"
)

// rollbackCmd restores the latest snapshot
var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll the service back to the latest snapshot",
	Long: `Stops the service, restores the revision, dependencies, and
configuration recorded in the latest snapshot, and restarts. Refuses
to run when no snapshot exists.`,
	RunE: runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	outcome := app.actuator.Rollback(context.Background())
	switch outcome {
	case recovery.OutcomeRecovered:
		fmt.Println("rollback complete, service is responding")
		return nil
	case recovery.OutcomeNoSnapshot:
		return fmt.Errorf("rollback refused: no snapshot exists")
	default:
		fmt.Println("rollback applied but the service is still not responding")
		app.close()
		os.Exit(1)
		return nil
	}
}
