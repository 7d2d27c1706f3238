package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// snapshotCmd takes a new snapshot
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture a point-in-time snapshot of the service state",
	Long: `Captures version, revision, configuration, lockfile, and artifact
inventories into a new snapshot directory and repoints "latest" to it.`,
	RunE: runSnapshot,
}

// snapshotListCmd lists existing snapshots
var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE:  runSnapshotList,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	snap, err := app.snaps.Take(context.Background())
	if err != nil {
		return err
	}
	if err := app.st.AppendEvent("snapshot", fmt.Sprintf("snapshot %s taken", snap.ID)); err != nil {
		app.log.Warn("failed to append event", map[string]interface{}{"error": err.Error()})
	}

	if done, err := printStructured(snap); done {
		return err
	}
	fmt.Printf("snapshot %s taken (version %s, revision %s, %d artifacts, %d symlinks)\n",
		snap.ID, orDash(snap.Version), orDash(shortRev(snap.Revision)),
		len(snap.PluginArtifacts), len(snap.Symlinks))
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	snaps, err := app.snaps.List()
	if err != nil {
		return err
	}
	latest, _ := app.snaps.Latest()

	if done, err := printStructured(snaps); done {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Version", "Revision", "Artifacts", "Channels", "Latest")
	for _, s := range snaps {
		mark := ""
		if latest != nil && latest.ID == s.ID {
			mark = "*"
		}
		table.Append(
			s.ID, orDash(s.Version), orDash(shortRev(s.Revision)),
			fmt.Sprintf("%d", len(s.PluginArtifacts)),
			fmt.Sprintf("%d", len(s.Channels)), mark,
		)
	}
	table.Render()
	return nil
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
