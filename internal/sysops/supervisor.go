package sysops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const supervisorTimeout = 30 * time.Second

// SystemdSupervisor drives the service through systemctl, preferring the
// system manager, then the user manager, then a bare kill+relaunch when
// no unit is registered.
type SystemdSupervisor struct {
	installDir   string
	startCommand []string // relaunch command for the unsupervised fallback
}

// NewSystemdSupervisor creates a supervisor. startCommand may be empty,
// in which case the kill+relaunch fallback relaunches nothing and
// reports the failure.
func NewSystemdSupervisor(installDir string, startCommand []string) *SystemdSupervisor {
	return &SystemdSupervisor{installDir: installDir, startCommand: startCommand}
}

func (s *SystemdSupervisor) systemctl(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, supervisorTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "systemctl", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// unitKnown reports whether either manager has a unit for the service
func (s *SystemdSupervisor) unitKnown(ctx context.Context, name string) (system, user bool) {
	unit := name + ".service"
	if err := s.systemctl(ctx, "cat", unit); err == nil {
		system = true
	}
	if err := s.systemctl(ctx, "--user", "cat", unit); err == nil {
		user = true
	}
	return system, user
}

func (s *SystemdSupervisor) run(ctx context.Context, verb, name string) error {
	unit := name + ".service"
	system, user := s.unitKnown(ctx, name)
	if system {
		return s.systemctl(ctx, verb, unit)
	}
	if user {
		return s.systemctl(ctx, "--user", verb, unit)
	}
	return fmt.Errorf("no systemd unit for %s", name)
}

func (s *SystemdSupervisor) Restart(ctx context.Context, name string) error {
	if err := s.run(ctx, "restart", name); err == nil {
		return nil
	}
	// Unsupervised fallback: kill by name, relaunch detached
	if err := s.killByName(ctx, name); err != nil {
		return err
	}
	return s.relaunch(name)
}

func (s *SystemdSupervisor) Stop(ctx context.Context, name string) error {
	if err := s.run(ctx, "stop", name); err == nil {
		return nil
	}
	return s.killByName(ctx, name)
}

func (s *SystemdSupervisor) Start(ctx context.Context, name string) error {
	if err := s.run(ctx, "start", name); err == nil {
		return nil
	}
	return s.relaunch(name)
}

func (s *SystemdSupervisor) killByName(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, supervisorTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pkill", "-f", name)
	// pkill exits 1 when nothing matched, which is fine here
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("pkill -f %s: %w", name, err)
	}
	return nil
}

func (s *SystemdSupervisor) relaunch(name string) error {
	if len(s.startCommand) == 0 {
		return fmt.Errorf("no supervised unit and no start command configured for %s", name)
	}
	cmd := exec.Command(s.startCommand[0], s.startCommand[1:]...)
	cmd.Dir = s.installDir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("relaunch %s: %w", name, err)
	}
	// Detach: the watchdog run must not outlive-block on the service
	go cmd.Wait()
	return nil
}
