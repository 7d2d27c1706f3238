package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/svcguard/internal/alert"
	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/escalate"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/metrics"
	"github.com/psantana5/svcguard/internal/probe"
	"github.com/psantana5/svcguard/internal/recovery"
	"github.com/psantana5/svcguard/internal/snapshot"
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/internal/sysops"
	"github.com/psantana5/svcguard/internal/upgrade"
)

var (
	cfgFile      string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "svcguard",
	Short: "Watchdog and upgrade guard for a managed service",
	Long: `svcguard keeps one long-running service alive through an escalating
restart/rollback policy, and protects its upgrades with a
snapshot/verify/rollback pipeline.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.svcguard/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table, json or yaml")
}

// app bundles the wired components for one command invocation
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	st        store.Store
	prober    *probe.Prober
	trend     *metrics.Trend
	exporter  *metrics.Exporter
	snaps     *snapshot.Store
	actuator  *recovery.Actuator
	escalator *escalate.Escalator
	pipeline  *upgrade.Pipeline
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	log := logging.New("svcguard", logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	st, err := store.NewSQLiteStore(cfg.StateDir, cfg.MetricsMaxLines)
	if err != nil {
		return nil, err
	}

	prober := probe.New(cfg, log)
	trend := metrics.NewTrend(st)
	exporter := metrics.NewExporter()

	vcs := sysops.NewGitVCS()
	pkg := sysops.NewNodePackageManager()
	sup := sysops.NewSystemdSupervisor(cfg.InstallDir, strings.Fields(cfg.StartCommand))

	httpCheck := func(ctx context.Context) bool { return prober.ProbeHTTP(ctx) }

	snaps := snapshot.New(cfg, vcs, pkg, httpCheck, log)
	actuator := recovery.New(cfg, snaps, vcs, pkg, sup, st, httpCheck, log)

	// An untyped nil keeps the Alerter's nil check meaningful when no
	// webhook URL is configured.
	var notifier alert.Notifier
	if wh := alert.NewWebhookNotifier(cfg.AlertWebhookURL); wh != nil {
		notifier = wh
	}
	alerter := alert.New(notifier, cfg.AlertsEnabled,
		cfg.AlertCooldown, cfg.AlertWarnCooldown, log)
	escalator := escalate.New(cfg, prober, actuator, st, trend, alerter, log)
	pipeline := upgrade.New(cfg, snaps, actuator, vcs, pkg, sup, st, httpCheck, log)

	return &app{
		cfg:       cfg,
		log:       log,
		st:        st,
		prober:    prober,
		trend:     trend,
		exporter:  exporter,
		snaps:     snaps,
		actuator:  actuator,
		escalator: escalator,
		pipeline:  pipeline,
	}, nil
}

func (a *app) close() {
	if err := a.st.Close(); err != nil {
		a.log.Warn("failed to close store", map[string]interface{}{"error": err.Error()})
	}
}

// printStructured renders v as JSON or YAML per the --output flag,
// returning false when the format is table so callers fall through.
func printStructured(v interface{}) (bool, error) {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return true, err
		}
		fmt.Print(string(data))
		return true, nil
	default:
		return false, nil
	}
}

func passFail(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}
