package upgrade

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/psantana5/svcguard/internal/snapshot"
)

// Preflight validates upgrade preconditions. Errors block the upgrade;
// warnings are surfaced and the pipeline proceeds.
func (p *Pipeline) Preflight(ctx context.Context) (*Report, error) {
	r := &Report{}

	if _, err := p.snaps.Latest(); err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			r.errorf("no snapshot exists; take one before upgrading")
		} else {
			r.errorf("cannot read latest snapshot: %v", err)
		}
	}

	if _, err := os.Stat(p.cfg.ConfigPath); err != nil {
		r.errorf("configuration file missing: %s", p.cfg.ConfigPath)
	} else if _, _, err := snapshot.ParseServiceConfig(p.cfg.ConfigPath); err != nil {
		r.errorf("configuration does not parse: %v", err)
	}

	if !p.vcs.IsRepo(p.cfg.InstallDir) {
		r.errorf("install dir %s is not a version-controlled checkout", p.cfg.InstallDir)
	} else {
		clean, err := p.vcs.IsClean(ctx, p.cfg.InstallDir)
		if err != nil {
			r.warnf("cannot determine working tree state: %v", err)
		} else if !clean {
			r.warnf("working tree is dirty; local changes may be lost")
		}
	}

	if usage, err := disk.UsageWithContext(ctx, p.cfg.InstallDir); err == nil {
		if usage.Free < p.diskFloorBytes {
			r.warnf("low free disk space: %dMB available, floor is %dMB",
				usage.Free/(1024*1024), p.diskFloorBytes/(1024*1024))
		}
	}

	if version := p.currentVersion(); version == "" {
		r.errorf("current version is not readable from %s", p.cfg.InstallDir)
	} else {
		r.infof("current version: %s", version)
	}

	if p.httpCheck != nil && !p.httpCheck(ctx) {
		r.warnf("service is not responding; upgrade will start it")
	}

	if p.vcs.IsRepo(p.cfg.InstallDir) {
		if err := p.vcs.Fetch(ctx, p.cfg.InstallDir); err != nil {
			r.warnf("fetch failed: %v", err)
		} else {
			behind, err := p.vcs.CommitsBehind(ctx, p.cfg.InstallDir)
			if err != nil {
				r.warnf("cannot count incoming commits: %v", err)
			} else {
				r.infof("%d commit(s) behind remote head", behind)
			}

			messages, err := p.vcs.IncomingMessages(ctx, p.cfg.InstallDir)
			if err == nil {
				for _, msg := range messages {
					if p.isBreaking(msg) {
						r.warnf("incoming commit looks breaking: %q", msg)
					}
				}
			}
		}
	}

	return r, nil
}

func (p *Pipeline) currentVersion() string {
	data, err := os.ReadFile(filepath.Join(p.cfg.InstallDir, "package.json"))
	if err != nil {
		return ""
	}
	// Shallow check only: the manifest is otherwise opaque here
	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	return manifest.Version
}
