package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/svcguard/internal/schedule"
	"github.com/psantana5/svcguard/pkg/models"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watchdog state, trigger registration, and recent activity",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusOutput struct {
	State        *models.WatchdogState `json:"state" yaml:"state"`
	Trigger      string                `json:"trigger" yaml:"trigger"`
	RecentEvents []models.Event        `json:"recent_events,omitempty" yaml:"recent_events,omitempty"`
	LastSample   *models.MetricSample  `json:"last_sample,omitempty" yaml:"last_sample,omitempty"`
	GrowthPct    *float64              `json:"rss_growth_pct,omitempty" yaml:"rss_growth_pct,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.close()

	state, err := app.st.LoadState()
	if err != nil {
		return err
	}

	registrar := schedule.NewRegistrar(app.cfg.CheckInterval, app.log)
	out := statusOutput{
		State:   state,
		Trigger: registrar.Status(context.Background()),
	}

	if events, err := app.st.RecentEvents(10); err == nil {
		out.RecentEvents = events
	}
	if sample, err := app.trend.Latest(); err == nil && sample != nil {
		out.LastSample = sample
		if growth, err := app.trend.DetectGrowth(sample.ServiceRSSMB); err == nil && growth != nil {
			out.GrowthPct = &growth.Pct
		}
	}

	if done, err := printStructured(out); done {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")
	table.Append("Status", string(state.Status))
	table.Append("Consecutive failures", fmt.Sprintf("%d", state.ConsecutiveFailures))
	table.Append("Last check", formatTime(state.LastCheckAt))
	table.Append("Last healthy", formatTime(state.LastHealthyAt))
	table.Append("Last action", string(state.LastAction))
	table.Append("Last action at", formatTime(state.LastActionAt))
	table.Append("Trigger", out.Trigger)
	if out.LastSample != nil {
		table.Append("Memory used", fmt.Sprintf("%.1f%%", out.LastSample.MemUsedPct))
		table.Append("Disk used", fmt.Sprintf("%.1f%%", out.LastSample.DiskUsedPct))
		table.Append("Service RSS", fmt.Sprintf("%.1f MB", out.LastSample.ServiceRSSMB))
		table.Append("Aux pool RSS", fmt.Sprintf("%.1f MB", out.LastSample.AuxProcMB))
	}
	if out.GrowthPct != nil {
		table.Append("RSS trend", fmt.Sprintf("%+.1f%% over window", *out.GrowthPct))
	}
	table.Render()

	if len(out.RecentEvents) > 0 {
		fmt.Println("\nRecent events:")
		events := tablewriter.NewWriter(os.Stdout)
		events.Header("Time", "Kind", "Message")
		for _, e := range out.RecentEvents {
			events.Append(e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Message)
		}
		events.Render()
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
