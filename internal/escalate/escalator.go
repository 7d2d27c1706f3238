// Package escalate holds the watchdog's failure-escalation state
// machine. Each cycle it aggregates probe results, counts consecutive
// failures, and under the cooldown constraint picks the cheapest
// remedial action that has not already been given a fair chance.
package escalate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/psantana5/svcguard/internal/alert"
	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/metrics"
	"github.com/psantana5/svcguard/internal/probe"
	"github.com/psantana5/svcguard/internal/recovery"
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/pkg/models"
)

// HealthProber is the probe surface the escalator consumes
type HealthProber interface {
	Probe(ctx context.Context) models.ProbeResult
	SampleResources(ctx context.Context) (probe.SampleResult, error)
}

// ActionRunner executes remedial actions
type ActionRunner interface {
	Restart(ctx context.Context) recovery.Outcome
	Rollback(ctx context.Context) recovery.Outcome
}

// CycleResult reports everything one check cycle observed and did
type CycleResult struct {
	State         *models.WatchdogState
	Probe         models.ProbeResult
	Sample        *models.MetricSample
	Report        models.ResourceReport
	Growth        *metrics.Growth
	ActionTaken   models.Action
	ActionOutcome recovery.Outcome
	ActionSkipped string // non-empty when an eligible action was withheld
}

// Healthy is the cycle's exit-code verdict: a recovered service counts
// as healthy.
func (c CycleResult) Healthy() bool {
	return c.State.Status != models.StatusUnhealthy
}

// Escalator drives one watchdog check cycle
type Escalator struct {
	cfg     *config.Config
	prober  HealthProber
	actions ActionRunner
	st      store.Store
	trend   *metrics.Trend
	alerter *alert.Alerter
	log     *logging.Logger

	now func() time.Time
}

// New creates an Escalator
func New(cfg *config.Config, prober HealthProber, actions ActionRunner,
	st store.Store, trend *metrics.Trend, alerter *alert.Alerter, log *logging.Logger) *Escalator {
	return &Escalator{
		cfg:     cfg,
		prober:  prober,
		actions: actions,
		st:      st,
		trend:   trend,
		alerter: alerter,
		log:     log,
		now:     time.Now,
	}
}

// RunCycle executes one full check: probe, sample, escalate, persist
func (e *Escalator) RunCycle(ctx context.Context) (*CycleResult, error) {
	state, err := e.st.LoadState()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	res := &CycleResult{
		State:       state,
		Probe:       e.prober.Probe(ctx),
		ActionTaken: models.ActionNone,
	}

	now := e.now()
	state.LastCheckAt = now
	state.LastIssues = res.Probe.Issues

	e.sampleResources(ctx, res, state, now)

	if res.Probe.Healthy() {
		e.handleHealthy(state, now)
	} else {
		e.handleUnhealthy(ctx, res, state, now)
	}

	e.sendAlerts(ctx, res, state)

	if err := e.st.SaveState(state); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}
	return res, nil
}

func (e *Escalator) sampleResources(ctx context.Context, res *CycleResult, state *models.WatchdogState, now time.Time) {
	sampled, err := e.prober.SampleResources(ctx)
	if err != nil {
		e.log.Warn("resource sampling failed", map[string]interface{}{"error": err.Error()})
		return
	}
	res.Sample = &sampled.Sample
	res.Report = sampled.Report

	if err := e.trend.Record(sampled.Sample); err != nil {
		e.log.Warn("failed to record sample", map[string]interface{}{"error": err.Error()})
	}
	if growth, err := e.trend.DetectGrowth(sampled.Sample.ServiceRSSMB); err == nil {
		res.Growth = growth
	}

	// Resource pressure is advisory: it annotates issues and alerts but
	// never feeds the failure counter.
	if sampled.Report.HasCritical() {
		state.LastIssues = append(state.LastIssues, models.IssueResourceCrit)
	} else if sampled.Report.HasWarning() {
		state.LastIssues = append(state.LastIssues, models.IssueResourceWarn)
	}

	if sampled.AuxRestarted {
		state.LastResourceCleanupAt = now
		e.event("cleanup", "aux pool restarted after critical memory breach")
	}
}

func (e *Escalator) handleHealthy(state *models.WatchdogState, now time.Time) {
	if err := models.ValidateStatusTransition(state.Status, models.StatusHealthy); err != nil {
		e.log.Warn("unexpected status transition", map[string]interface{}{"error": err.Error()})
	}
	if state.Status == models.StatusUnhealthy {
		e.event("check", "service healthy again without intervention")
	}
	state.Status = models.StatusHealthy
	state.ConsecutiveFailures = 0
	state.LastHealthyAt = now
}

func (e *Escalator) handleUnhealthy(ctx context.Context, res *CycleResult, state *models.WatchdogState, now time.Time) {
	state.ConsecutiveFailures++
	state.Status = models.StatusUnhealthy
	n := state.ConsecutiveFailures

	e.log.Warn("service unhealthy", map[string]interface{}{
		"consecutive_failures": n,
		"issues":               issueList(res.Probe.Issues),
	})

	if n < uint(e.cfg.FailThreshold) {
		res.ActionSkipped = fmt.Sprintf("below threshold (%d/%d)", n, e.cfg.FailThreshold)
		return
	}

	if !state.LastActionAt.IsZero() && now.Sub(state.LastActionAt) < e.cfg.ActionCooldown {
		remaining := e.cfg.ActionCooldown - now.Sub(state.LastActionAt)
		res.ActionSkipped = fmt.Sprintf("cooldown active (%s remaining)", remaining.Round(time.Second))
		e.log.Warn("action withheld by cooldown", map[string]interface{}{"remaining": remaining.String()})
		return
	}

	// Restart always gets tried first, and keeps being tried until the
	// counter doubles the threshold; only then does a repeated restart
	// escalate to rollback.
	action := models.ActionRestart
	if state.LastAction == models.ActionRestart && n >= uint(e.cfg.FailThreshold)*2 {
		action = models.ActionRollback
	}

	e.event("check", fmt.Sprintf("threshold breached (n=%d), taking action: %s", n, action))

	var outcome recovery.Outcome
	switch action {
	case models.ActionRollback:
		outcome = e.actions.Rollback(ctx)
		if outcome == recovery.OutcomeNoSnapshot {
			// Refused precondition: nothing ran, so no action bookkeeping
			// and the counter stays elevated.
			res.ActionSkipped = "rollback refused: no snapshot"
			return
		}
	default:
		outcome = e.actions.Restart(ctx)
	}

	// LastAction and LastActionAt always move together
	state.LastAction = action
	state.LastActionAt = now
	res.ActionTaken = action
	res.ActionOutcome = outcome

	if outcome == recovery.OutcomeRecovered {
		state.ConsecutiveFailures = 0
		to := models.StatusRecovered
		if action == models.ActionRollback {
			to = models.StatusRolledBack
		}
		if err := models.ValidateStatusTransition(state.Status, to); err != nil {
			e.log.Warn("unexpected status transition", map[string]interface{}{"error": err.Error()})
		}
		state.Status = to
	}
}

func (e *Escalator) sendAlerts(ctx context.Context, res *CycleResult, state *models.WatchdogState) {
	if e.alerter == nil {
		return
	}

	if state.Status == models.StatusUnhealthy && state.ConsecutiveFailures >= uint(e.cfg.FailThreshold) {
		msg := fmt.Sprintf("%s unhealthy after %d consecutive failures (issues: %s)",
			e.cfg.ServiceName, state.ConsecutiveFailures, issueList(state.LastIssues))
		if res.ActionTaken != models.ActionNone {
			msg += fmt.Sprintf("; action %s -> %s", res.ActionTaken, res.ActionOutcome)
		}
		if e.alerter.Send(ctx, alert.SeverityCritical, "service unhealthy", msg, state) {
			e.event("alert", msg)
		}
		return
	}

	var warns []string
	warns = append(warns, res.Report.Warnings...)
	warns = append(warns, res.Report.Criticals...)
	if res.Growth != nil && res.Growth.Flagged {
		warns = append(warns, fmt.Sprintf("service RSS grew %.1f%% over the trend window", res.Growth.Pct))
	}
	if len(warns) > 0 {
		msg := strings.Join(warns, "; ")
		if e.alerter.Send(ctx, alert.SeverityWarning, "resource warning", msg, state) {
			e.event("alert", msg)
		}
	}
}

func (e *Escalator) event(kind, message string) {
	if err := e.st.AppendEvent(kind, message); err != nil {
		e.log.Warn("failed to append event", map[string]interface{}{"error": err.Error()})
	}
}

func issueList(issues []models.IssueCode) string {
	if len(issues) == 0 {
		return "none"
	}
	parts := make([]string, len(issues))
	for i, c := range issues {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
