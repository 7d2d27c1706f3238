package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/svcguard/internal/upgrade"
)

var upgradeDryRun bool

// upgradeCmd runs the guarded upgrade pipeline
var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the service with snapshot, verification, and rollback guard",
	Long: `Runs preflight validation, takes a fresh snapshot, applies the upgrade,
and verifies the result against the pre-change snapshot. Hard failures
mid-apply are reversed automatically; verification problems are
reported with a rollback recommendation.`,
	RunE: runUpgrade,
}

// upgradeCheckCmd runs preflight alone
var upgradeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run upgrade preflight checks only",
	RunE:  runUpgradeCheck,
}

// verifyCmd re-verifies the current state against the latest snapshot
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify current state against the latest snapshot",
	RunE:  runVerify,
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeDryRun, "dry-run", false, "stop after preflight, change nothing")
	rootCmd.AddCommand(upgradeCmd)
	upgradeCmd.AddCommand(upgradeCheckCmd)
	rootCmd.AddCommand(verifyCmd)
}

func printReport(phase string, r *upgrade.Report) {
	for _, msg := range r.Infos {
		fmt.Printf("  info  %s\n", msg)
	}
	for _, msg := range r.Warnings {
		fmt.Printf("  warn  %s\n", msg)
	}
	for _, msg := range r.Errors {
		fmt.Printf("  error %s\n", msg)
	}
	fmt.Printf("%s: %d error(s), %d warning(s)\n", phase, len(r.Errors), len(r.Warnings))
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	report, err := app.pipeline.Run(context.Background(), upgradeDryRun)
	if report != nil {
		printReport("upgrade", report)
	}
	if err != nil {
		return err
	}
	if !report.OK() {
		fmt.Println("upgrade may have problems, rollback recommended")
		app.close()
		os.Exit(1)
	}
	return nil
}

func runUpgradeCheck(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	report, err := app.pipeline.Preflight(context.Background())
	if err != nil {
		return err
	}
	printReport("preflight", report)
	if !report.OK() {
		app.close()
		os.Exit(1)
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	snap, err := app.snaps.Latest()
	if err != nil {
		return err
	}

	report, err := app.pipeline.Verify(context.Background(), snap)
	if err != nil {
		return err
	}
	printReport("verify", report)
	if !report.OK() {
		fmt.Println("verification found problems, rollback recommended")
		app.close()
		os.Exit(1)
	}
	return nil
}
