package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/svcguard/pkg/models"
)

// checkCmd runs one watchdog cycle
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one watchdog check cycle",
	Long: `Probes the managed service, updates the escalation state machine, and
takes a remedial action if the failure threshold is breached. Exits 0
when the service is healthy (or just recovered), 1 otherwise.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	res, err := app.escalator.RunCycle(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("process  %s\n", passFail(res.Probe.ProcessUp))
	fmt.Printf("http     %s\n", passFail(res.Probe.HTTPUp))
	fmt.Printf("channel  %s\n", passFail(res.Probe.AuxChannelOk))

	for _, w := range res.Report.Warnings {
		fmt.Printf("warn     %s\n", w)
	}
	for _, c := range res.Report.Criticals {
		fmt.Printf("crit     %s\n", c)
	}
	if res.Growth != nil && res.Growth.Flagged {
		fmt.Printf("warn     service RSS grew %.1f%% over the trend window\n", res.Growth.Pct)
	}

	if res.ActionTaken != models.ActionNone {
		fmt.Printf("action   %s -> %s\n", res.ActionTaken, res.ActionOutcome)
	} else if res.ActionSkipped != "" {
		fmt.Printf("action   none (%s)\n", res.ActionSkipped)
	}

	fmt.Printf("status   %s (consecutive failures: %d)\n",
		res.State.Status, res.State.ConsecutiveFailures)

	app.exporter.Update(res.State, res.Sample)
	if err := app.exporter.WriteTextfile(app.cfg.StateDir); err != nil {
		app.log.Warn("failed to write metrics textfile", map[string]interface{}{"error": err.Error()})
	}

	if !res.Healthy() {
		app.close()
		os.Exit(1)
	}
	return nil
}
