package upgrade

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/psantana5/svcguard/internal/snapshot"
	"github.com/psantana5/svcguard/pkg/models"
)

const (
	verifyHealthTimeout = 30 * time.Second
	verifyPollInterval  = time.Second
	verifyLogTailBytes  = 64 * 1024
)

var logErrorPattern = regexp.MustCompile(`(?i)\b(error|exception|unhandled rejection)\b`)

// Verify diffs the post-change state against the pre-change snapshot.
// Errors mean "rollback recommended" but the decision stays with the
// operator; only hard apply failures rolled back automatically.
func (p *Pipeline) Verify(ctx context.Context, snap *models.Snapshot) (*Report, error) {
	r := &Report{}

	p.verifyArtifacts(r, snap)
	p.verifyConfig(r, snap)
	p.verifySymlinks(r)
	p.verifyHealth(ctx, r)
	p.verifyLogs(r)

	return r, nil
}

// verifyArtifacts reports plugin files present before the change but
// gone after it, with a rename suggestion where the heuristic finds
// one. New files are informational.
func (p *Pipeline) verifyArtifacts(r *Report, snap *models.Snapshot) {
	current := p.snaps.CurrentArtifacts()

	old := make(map[string]bool, len(snap.PluginArtifacts))
	for _, a := range snap.PluginArtifacts {
		old[a] = true
	}
	cur := make(map[string]bool, len(current))
	for _, a := range current {
		cur[a] = true
	}

	var added []string
	for _, a := range current {
		if !old[a] {
			added = append(added, a)
			r.infof("new artifact: %s", a)
		}
	}
	for _, a := range snap.PluginArtifacts {
		if cur[a] {
			continue
		}
		if hint := p.renameHint(a, added); hint != "" {
			r.warnf("artifact removed/renamed: %s (possibly now %s)", a, hint)
		} else {
			r.warnf("artifact removed/renamed: %s", a)
		}
	}
}

// verifyConfig re-parses the live config, requires every
// previously-recorded channel to survive, and checks the primary model.
func (p *Pipeline) verifyConfig(r *Report, snap *models.Snapshot) {
	channels, model, err := snapshot.ParseServiceConfig(p.cfg.ConfigPath)
	if err != nil {
		r.errorf("configuration invalid after upgrade: %v", err)
		return
	}

	have := make(map[string]bool, len(channels))
	for _, c := range channels {
		have[c] = true
	}
	for _, c := range snap.Channels {
		if !have[c] {
			r.errorf("channel %q disappeared from configuration", c)
		}
	}

	switch {
	case snap.PrimaryModel != "" && model == "":
		r.errorf("primary model is no longer configured (was %q)", snap.PrimaryModel)
	case snap.PrimaryModel != "" && model != snap.PrimaryModel:
		r.warnf("primary model changed: %q -> %q", snap.PrimaryModel, model)
	}
}

// verifySymlinks flags any link whose target no longer resolves
func (p *Pipeline) verifySymlinks(r *Report) {
	installDir := p.snaps.InstallDir()
	for _, link := range p.snaps.CurrentSymlinks() {
		if _, err := os.Stat(filepath.Join(installDir, link)); err != nil {
			r.errorf("dangling symlink: %s", link)
		}
	}
}

// verifyHealth starts the service if needed and polls until it responds
func (p *Pipeline) verifyHealth(ctx context.Context, r *Report) {
	if p.httpCheck == nil {
		return
	}
	if !p.httpCheck(ctx) {
		if err := p.sup.Start(ctx, p.cfg.ServiceName); err != nil {
			p.log.Warn("start during verify failed", map[string]interface{}{"error": err.Error()})
		}
	}

	deadline := time.Now().Add(verifyHealthTimeout)
	for time.Now().Before(deadline) {
		if p.httpCheck(ctx) {
			return
		}
		time.Sleep(verifyPollInterval)
	}
	r.errorf("service did not respond within %s of starting", verifyHealthTimeout)
}

// verifyLogs tails the service log for error signatures
func (p *Pipeline) verifyLogs(r *Report) {
	path := p.cfg.ServiceLogPath
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if int64(len(data)) > verifyLogTailBytes {
		data = data[int64(len(data))-verifyLogTailBytes:]
	}

	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		if logErrorPattern.MatchString(line) {
			count++
		}
	}
	if count > 0 {
		r.warnf("%d error-pattern line(s) in recent service logs", count)
	}
}
