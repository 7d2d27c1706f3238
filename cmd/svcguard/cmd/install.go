package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/schedule"
)

// installCmd registers the periodic check trigger
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Register the periodic check with the host scheduler",
	Long: `Registers the watchdog check as a periodic trigger, preferring a
system-level systemd timer, then a user-level one, then a crontab entry.`,
	RunE: runInstall,
}

// uninstallCmd removes the trigger registration
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the periodic check trigger",
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

// newRegistrar wires a Registrar without opening the state store;
// trigger management should work before the first check ever runs.
func newRegistrar() (*schedule.Registrar, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log := logging.New("svcguard", logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	return schedule.NewRegistrar(cfg.CheckInterval, log), nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	registrar, err := newRegistrar()
	if err != nil {
		return err
	}
	mechanism, err := registrar.Install(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("watchdog trigger installed via %s\n", mechanism)
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	registrar, err := newRegistrar()
	if err != nil {
		return err
	}
	if err := registrar.Uninstall(context.Background()); err != nil {
		return err
	}
	fmt.Println("watchdog trigger removed")
	return nil
}
