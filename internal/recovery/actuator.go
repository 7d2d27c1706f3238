// Package recovery executes the watchdog's remedial actions: a
// supervised restart, and a rollback to the latest snapshot. Both
// verify success by re-probing HTTP health and both leave a durable
// event log entry whatever the result.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/snapshot"
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/internal/sysops"
)

// Outcome is the result of a remedial action
type Outcome string

const (
	OutcomeRecovered  Outcome = "recovered"
	OutcomeStillDown  Outcome = "still_down"
	OutcomeNoSnapshot Outcome = "no_snapshot"
)

// rollbackSettleDelay is the fixed wait before the single post-rollback
// health check. Rollback is the last resort and already slow; it gets
// one check, not a poll loop.
const rollbackSettleDelay = 10 * time.Second

// Actuator performs restarts and rollbacks
type Actuator struct {
	cfg   *config.Config
	snaps *snapshot.Store
	vcs   sysops.VersionControl
	pkg   sysops.PackageManager
	sup   sysops.ServiceSupervisor
	st    store.Store
	log   *logging.Logger

	// httpCheck re-probes service health after an action
	httpCheck func(ctx context.Context) bool

	pollInterval time.Duration
	settleDelay  time.Duration
}

// New creates an Actuator
func New(cfg *config.Config, snaps *snapshot.Store, vcs sysops.VersionControl,
	pkg sysops.PackageManager, sup sysops.ServiceSupervisor, st store.Store,
	httpCheck func(ctx context.Context) bool, log *logging.Logger) *Actuator {
	return &Actuator{
		cfg:          cfg,
		snaps:        snaps,
		vcs:          vcs,
		pkg:          pkg,
		sup:          sup,
		st:           st,
		log:          log,
		httpCheck:    httpCheck,
		pollInterval: time.Second,
		settleDelay:  rollbackSettleDelay,
	}
}

// Restart issues a supervised restart and polls HTTP health once per
// second up to the restart timeout.
func (a *Actuator) Restart(ctx context.Context) Outcome {
	a.log.Info("restarting service", map[string]interface{}{"service": a.cfg.ServiceName})

	if err := a.sup.Restart(ctx, a.cfg.ServiceName); err != nil {
		a.log.Error("restart command failed", map[string]interface{}{"error": err.Error()})
		a.event("restart", fmt.Sprintf("restart command failed: %v", err))
		return OutcomeStillDown
	}

	deadline := time.Now().Add(a.cfg.RestartTimeout)
	for time.Now().Before(deadline) {
		if a.httpCheck(ctx) {
			a.event("restart", "service recovered after restart")
			return OutcomeRecovered
		}
		time.Sleep(a.pollInterval)
	}

	a.event("restart", fmt.Sprintf("service still down %s after restart", a.cfg.RestartTimeout))
	return OutcomeStillDown
}

// Rollback restores the latest snapshot: stop, checkout the recorded
// revision, reinstall dependencies, rebuild if declared, restore the
// config copy, start, then a single health check after a settle delay.
// Fails fast with OutcomeNoSnapshot when no latest pointer exists.
func (a *Actuator) Rollback(ctx context.Context) Outcome {
	snap, err := a.snaps.Latest()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			a.log.Error("rollback requested with no snapshot available")
			a.event("rollback", "refused: no snapshot available")
			return OutcomeNoSnapshot
		}
		a.log.Error("rollback: cannot read latest snapshot", map[string]interface{}{"error": err.Error()})
		a.event("rollback", fmt.Sprintf("failed to read latest snapshot: %v", err))
		return OutcomeStillDown
	}

	a.log.Info("rolling back to snapshot", map[string]interface{}{
		"id": snap.ID, "revision": snap.Revision, "version": snap.Version,
	})

	if err := a.sup.Stop(ctx, a.cfg.ServiceName); err != nil {
		a.log.Warn("stop before rollback failed, continuing", map[string]interface{}{"error": err.Error()})
	}

	if snap.Revision != "" && a.vcs.IsRepo(a.cfg.InstallDir) {
		if err := a.vcs.CheckoutRevision(ctx, a.cfg.InstallDir, snap.Revision); err != nil {
			a.event("rollback", fmt.Sprintf("checkout %s failed: %v", snap.Revision, err))
			return OutcomeStillDown
		}
		if a.pkg.Available(a.cfg.InstallDir) {
			if err := a.pkg.Install(ctx, a.cfg.InstallDir); err != nil {
				a.event("rollback", fmt.Sprintf("dependency reinstall failed: %v", err))
				return OutcomeStillDown
			}
			if a.pkg.HasBuildStep(a.cfg.InstallDir) {
				if err := a.pkg.Build(ctx, a.cfg.InstallDir); err != nil {
					a.event("rollback", fmt.Sprintf("build failed: %v", err))
					return OutcomeStillDown
				}
			}
		}
	}

	if snap.HasConfig {
		if err := restoreFile(a.snaps.ConfigCopyPath(snap.ID), a.cfg.ConfigPath); err != nil {
			a.event("rollback", fmt.Sprintf("config restore failed: %v", err))
			return OutcomeStillDown
		}
	}

	if err := a.sup.Start(ctx, a.cfg.ServiceName); err != nil {
		a.event("rollback", fmt.Sprintf("start after rollback failed: %v", err))
		return OutcomeStillDown
	}

	time.Sleep(a.settleDelay)
	if a.httpCheck(ctx) {
		a.event("rollback", fmt.Sprintf("service recovered on snapshot %s", snap.ID))
		return OutcomeRecovered
	}
	a.event("rollback", fmt.Sprintf("service still down on snapshot %s", snap.ID))
	return OutcomeStillDown
}

func (a *Actuator) event(kind, message string) {
	if err := a.st.AppendEvent(kind, message); err != nil {
		a.log.Warn("failed to append event", map[string]interface{}{"error": err.Error()})
	}
}
