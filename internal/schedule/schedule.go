// Package schedule registers the periodic check trigger with whichever
// host scheduler is available: a system-level systemd timer, a
// user-level one, or a crontab entry as the fallback. The timer runs
// the short-lived `svcguard check` and must not overlap runs; systemd
// oneshot units and cron's per-minute granularity both give us that as
// long as a check stays well under the interval.
package schedule

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/psantana5/svcguard/internal/logging"
)

const (
	unitName   = "svcguard"
	cronMarker = "# svcguard watchdog"
)

// Registrar installs and removes the periodic trigger
type Registrar struct {
	interval time.Duration
	log      *logging.Logger
}

// NewRegistrar creates a Registrar for the given check interval
func NewRegistrar(interval time.Duration, log *logging.Logger) *Registrar {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Registrar{interval: interval, log: log}
}

// Install registers the trigger, returning the mechanism used
func (r *Registrar) Install(ctx context.Context) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("cannot determine executable path: %w", err)
	}

	if err := r.installSystemd(ctx, exe, "/etc/systemd/system", nil); err == nil {
		return "systemd (system)", nil
	} else {
		r.log.Debug("system-level systemd install unavailable", map[string]interface{}{"error": err.Error()})
	}

	if home, err := os.UserHomeDir(); err == nil {
		userDir := filepath.Join(home, ".config", "systemd", "user")
		if err := r.installSystemd(ctx, exe, userDir, []string{"--user"}); err == nil {
			return "systemd (user)", nil
		} else {
			r.log.Debug("user-level systemd install unavailable", map[string]interface{}{"error": err.Error()})
		}
	}

	if err := r.installCron(ctx, exe); err != nil {
		return "", fmt.Errorf("no scheduler available: %w", err)
	}
	return "cron", nil
}

func (r *Registrar) installSystemd(ctx context.Context, exe, unitDir string, scope []string) error {
	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return err
	}

	service := fmt.Sprintf(`[Unit]
Description=svcguard watchdog check

[Service]
Type=oneshot
ExecStart=%s check
`, exe)

	timer := fmt.Sprintf(`[Unit]
Description=svcguard watchdog timer

[Timer]
OnBootSec=%ds
OnUnitActiveSec=%ds

[Install]
WantedBy=timers.target
`, int(r.interval.Seconds()), int(r.interval.Seconds()))

	if err := os.WriteFile(filepath.Join(unitDir, unitName+".service"), []byte(service), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(unitDir, unitName+".timer"), []byte(timer), 0o644); err != nil {
		return err
	}

	if err := r.systemctl(ctx, scope, "daemon-reload"); err != nil {
		return err
	}
	return r.systemctl(ctx, scope, "enable", "--now", unitName+".timer")
}

func (r *Registrar) systemctl(ctx context.Context, scope []string, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "systemctl", append(scope, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (r *Registrar) installCron(ctx context.Context, exe string) error {
	existing, _ := r.crontab(ctx)
	lines := withoutMarkerBlock(existing)

	minutes := cronMinutes(r.interval)
	lines = append(lines,
		cronMarker,
		fmt.Sprintf("*/%d * * * * %s check >/dev/null 2>&1", minutes, exe),
	)
	return r.writeCrontab(ctx, lines)
}

// cronMinutes clamps the interval to the largest divisor of 60 at or
// below it. A */N field only fires evenly when N divides the hour.
func cronMinutes(interval time.Duration) int {
	minutes := int(interval.Minutes())
	if minutes < 1 {
		return 1
	}
	if minutes > 60 {
		minutes = 60
	}
	for 60%minutes != 0 {
		minutes--
	}
	return minutes
}

// Uninstall removes whichever trigger registration exists
func (r *Registrar) Uninstall(ctx context.Context) error {
	var removed bool

	for _, scope := range [][]string{nil, {"--user"}} {
		if err := r.systemctl(ctx, scope, "disable", "--now", unitName+".timer"); err == nil {
			removed = true
		}
	}
	for _, dir := range r.unitDirs() {
		for _, suffix := range []string{".service", ".timer"} {
			path := filepath.Join(dir, unitName+suffix)
			if err := os.Remove(path); err == nil {
				removed = true
			}
		}
	}

	if existing, err := r.crontab(ctx); err == nil {
		trimmed := withoutMarkerBlock(existing)
		if len(trimmed) != len(existing) {
			if err := r.writeCrontab(ctx, trimmed); err != nil {
				return err
			}
			removed = true
		}
	}

	if !removed {
		return fmt.Errorf("no trigger registration found")
	}
	return nil
}

// Status describes the current registration for the status command
func (r *Registrar) Status(ctx context.Context) string {
	for _, dir := range r.unitDirs() {
		if _, err := os.Stat(filepath.Join(dir, unitName+".timer")); err == nil {
			if strings.Contains(dir, ".config") {
				return "systemd timer (user)"
			}
			return "systemd timer (system)"
		}
	}
	if existing, err := r.crontab(ctx); err == nil {
		for _, line := range existing {
			if line == cronMarker {
				return "cron"
			}
		}
	}
	return "not installed"
}

func (r *Registrar) unitDirs() []string {
	dirs := []string{"/etc/systemd/system"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "systemd", "user"))
	}
	return dirs
}

func (r *Registrar) crontab(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "crontab", "-l").Output()
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
}

func (r *Registrar) writeCrontab(ctx context.Context, lines []string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "crontab", "-")
	cmd.Stdin = strings.NewReader(strings.Join(lines, "\n") + "\n")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("crontab write failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// withoutMarkerBlock drops the marker comment and the entry after it
func withoutMarkerBlock(lines []string) []string {
	var out []string
	skip := false
	for _, line := range lines {
		if line == cronMarker {
			skip = true
			continue
		}
		if skip {
			skip = false
			continue
		}
		if line != "" || len(out) > 0 {
			out = append(out, line)
		}
	}
	return out
}
