// Package upgrade orchestrates the guarded upgrade pipeline: preflight
// validation, a fresh snapshot, the apply step, and post-change
// verification, with automatic reversal on hard mid-pipeline failures.
package upgrade

import (
	"context"
	"fmt"
	"strings"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/recovery"
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/internal/sysops"
	"github.com/psantana5/svcguard/pkg/models"
)

// breakingKeywords is the fixed, case-insensitive word list scanned in
// incoming commit messages.
var breakingKeywords = []string{"breaking", "incompatible", "migration required", "major rewrite", "drops support"}

// BreakingChangeClassifier decides whether a commit message signals a
// breaking change. Pluggable so the word list can evolve independently.
type BreakingChangeClassifier func(message string) bool

// DefaultBreakingChangeClassifier matches the fixed keyword list
func DefaultBreakingChangeClassifier(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range breakingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RenameHinter suggests the likely new name of a removed artifact given
// the added inventory, "" when it has no idea. The default swaps the
// two plugin naming conventions; it is a narrow heuristic, hence
// pluggable.
type RenameHinter func(removed string, added []string) string

// SnapshotStore is the snapshot surface the pipeline consumes
type SnapshotStore interface {
	Take(ctx context.Context) (*models.Snapshot, error)
	Latest() (*models.Snapshot, error)
	CurrentArtifacts() []string
	CurrentSymlinks() []string
	ConfigCopyPath(id string) string
	InstallDir() string
}

// Rollbacker is the actuator surface the pipeline consumes
type Rollbacker interface {
	Rollback(ctx context.Context) recovery.Outcome
}

// Pipeline runs the upgrade phases
type Pipeline struct {
	cfg      *config.Config
	snaps    SnapshotStore
	rollback Rollbacker
	vcs      sysops.VersionControl
	pkg      sysops.PackageManager
	sup      sysops.ServiceSupervisor
	st       store.Store
	log      *logging.Logger

	httpCheck  func(ctx context.Context) bool
	isBreaking BreakingChangeClassifier
	renameHint RenameHinter

	// free disk floor for the preflight warning, in bytes
	diskFloorBytes uint64
}

// New creates an upgrade Pipeline
func New(cfg *config.Config, snaps SnapshotStore, rollback Rollbacker,
	vcs sysops.VersionControl, pkg sysops.PackageManager, sup sysops.ServiceSupervisor,
	st store.Store, httpCheck func(ctx context.Context) bool, log *logging.Logger) *Pipeline {
	return &Pipeline{
		cfg:            cfg,
		snaps:          snaps,
		rollback:       rollback,
		vcs:            vcs,
		pkg:            pkg,
		sup:            sup,
		st:             st,
		log:            log,
		httpCheck:      httpCheck,
		isBreaking:     DefaultBreakingChangeClassifier,
		renameHint:     DefaultRenameHinter,
		diskFloorBytes: 500 * 1024 * 1024,
	}
}

// SetBreakingChangeClassifier overrides the commit message classifier
func (p *Pipeline) SetBreakingChangeClassifier(c BreakingChangeClassifier) {
	p.isBreaking = c
}

// SetRenameHinter overrides the artifact rename heuristic
func (p *Pipeline) SetRenameHinter(h RenameHinter) {
	p.renameHint = h
}

// Run executes the full pipeline. dryRun stops after preflight and the
// upgrade plan. A verify Report is returned on success for the caller
// to surface; hard apply failures come back as errors after reversal.
func (p *Pipeline) Run(ctx context.Context, dryRun bool) (*Report, error) {
	pre, err := p.Preflight(ctx)
	if err != nil {
		return nil, err
	}
	if !pre.OK() {
		return pre, fmt.Errorf("preflight failed with %d error(s)", len(pre.Errors))
	}

	behind, _ := p.vcs.CommitsBehind(ctx, p.cfg.InstallDir)
	if behind == 0 {
		pre.infof("already at remote head, nothing to upgrade")
		return pre, nil
	}
	pre.infof("upgrade will apply %d commit(s)", behind)

	if dryRun {
		pre.infof("dry run: stopping before any change")
		return pre, nil
	}

	snap, err := p.snaps.Take(ctx)
	if err != nil {
		return pre, fmt.Errorf("pre-upgrade snapshot failed: %w", err)
	}
	p.event("upgrade", fmt.Sprintf("starting upgrade from %s (snapshot %s)", snap.Revision, snap.ID))

	if err := p.apply(ctx, snap); err != nil {
		return pre, err
	}

	verify, err := p.Verify(ctx, snap)
	if err != nil {
		return pre, err
	}
	pre.Merge(verify)

	if verify.OK() {
		p.event("upgrade", "upgrade completed and verified")
	} else {
		p.event("upgrade", fmt.Sprintf("upgrade verification found %d error(s), rollback recommended", len(verify.Errors)))
	}
	return pre, nil
}

// apply performs stop, update, reinstall, build, start, reversing
// the checkout on any step failure and escalating a build failure to a
// full rollback.
func (p *Pipeline) apply(ctx context.Context, snap *models.Snapshot) error {
	if err := p.sup.Stop(ctx, p.cfg.ServiceName); err != nil {
		p.log.Warn("stop before upgrade failed, continuing", map[string]interface{}{"error": err.Error()})
	}

	if err := p.vcs.UpdateToRemoteHead(ctx, p.cfg.InstallDir); err != nil {
		p.revertCheckout(ctx, snap)
		p.sup.Start(ctx, p.cfg.ServiceName)
		p.event("upgrade", fmt.Sprintf("update failed, checkout reverted: %v", err))
		return fmt.Errorf("update to remote head failed: %w", err)
	}

	if p.pkg.Available(p.cfg.InstallDir) {
		if err := p.pkg.Install(ctx, p.cfg.InstallDir); err != nil {
			p.revertCheckout(ctx, snap)
			p.sup.Start(ctx, p.cfg.ServiceName)
			p.event("upgrade", fmt.Sprintf("dependency install failed, checkout reverted: %v", err))
			return fmt.Errorf("dependency install failed: %w", err)
		}
		if p.pkg.HasBuildStep(p.cfg.InstallDir) {
			if err := p.pkg.Build(ctx, p.cfg.InstallDir); err != nil {
				// A broken build means the tree may be half-generated:
				// reversal is not enough, restore the whole snapshot.
				p.event("upgrade", fmt.Sprintf("build failed, rolling back: %v", err))
				outcome := p.rollback.Rollback(ctx)
				return fmt.Errorf("build failed (%v), rollback outcome: %s", err, outcome)
			}
		}
	}

	if err := p.sup.Start(ctx, p.cfg.ServiceName); err != nil {
		return fmt.Errorf("start after upgrade failed: %w", err)
	}
	return nil
}

func (p *Pipeline) revertCheckout(ctx context.Context, snap *models.Snapshot) {
	if snap.Revision == "" {
		return
	}
	if err := p.vcs.CheckoutRevision(ctx, p.cfg.InstallDir, snap.Revision); err != nil {
		p.log.Error("checkout reversal failed", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Pipeline) event(kind, message string) {
	if err := p.st.AppendEvent(kind, message); err != nil {
		p.log.Warn("failed to append event", map[string]interface{}{"error": err.Error()})
	}
}

// DefaultRenameHinter swaps the two plugin naming conventions:
// name.plugin.js <-> plugin-name.js
func DefaultRenameHinter(removed string, added []string) string {
	base := removed
	if idx := strings.LastIndex(removed, "/"); idx >= 0 {
		base = removed[idx+1:]
	}

	var candidate string
	switch {
	case strings.HasSuffix(base, ".plugin.js"):
		candidate = "plugin-" + strings.TrimSuffix(base, ".plugin.js") + ".js"
	case strings.HasSuffix(base, ".plugin.ts"):
		candidate = "plugin-" + strings.TrimSuffix(base, ".plugin.ts") + ".ts"
	case strings.HasPrefix(base, "plugin-") && strings.HasSuffix(base, ".js"):
		candidate = strings.TrimSuffix(strings.TrimPrefix(base, "plugin-"), ".js") + ".plugin.js"
	case strings.HasPrefix(base, "plugin-") && strings.HasSuffix(base, ".ts"):
		candidate = strings.TrimSuffix(strings.TrimPrefix(base, "plugin-"), ".ts") + ".plugin.ts"
	default:
		return ""
	}

	for _, a := range added {
		if a == candidate || strings.HasSuffix(a, "/"+candidate) {
			return a
		}
	}
	return ""
}
