package sysops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Dependency reinstalls run unbounded in practice; this is a safety net
// against a wedged registry, not a deadline.
const installTimeout = 15 * time.Minute

// NodePackageManager implements PackageManager for npm-style checkouts.
// The concrete tool is picked from the lockfile present in the install
// directory.
type NodePackageManager struct{}

// NewNodePackageManager creates a lockfile-detecting PackageManager
func NewNodePackageManager() *NodePackageManager {
	return &NodePackageManager{}
}

// lockfiles maps the lockfile name to the tool that owns it, in
// detection priority order
var lockfiles = []struct {
	name string
	tool string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"package-lock.json", "npm"},
}

func (p *NodePackageManager) detect(dir string) (tool, lockfile string) {
	for _, lf := range lockfiles {
		path := filepath.Join(dir, lf.name)
		if _, err := os.Stat(path); err == nil {
			if _, lookErr := exec.LookPath(lf.tool); lookErr == nil {
				return lf.tool, path
			}
		}
	}
	// Manifest without a lockfile still installs with npm if present
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		if _, lookErr := exec.LookPath("npm"); lookErr == nil {
			return "npm", ""
		}
	}
	return "", ""
}

func (p *NodePackageManager) Available(dir string) bool {
	tool, _ := p.detect(dir)
	return tool != ""
}

func (p *NodePackageManager) LockfilePath(dir string) string {
	_, lockfile := p.detect(dir)
	return lockfile
}

func (p *NodePackageManager) Install(ctx context.Context, dir string) error {
	tool, _ := p.detect(dir)
	if tool == "" {
		return fmt.Errorf("no package manager available in %s", dir)
	}
	ctx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, "install")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s install: %w: %s", tool, err, lastLines(string(out), 5))
	}
	return nil
}

type packageManifest struct {
	Scripts map[string]string `json:"scripts"`
}

func (p *NodePackageManager) HasBuildStep(dir string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	var manifest packageManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return false
	}
	_, ok := manifest.Scripts["build"]
	return ok
}

func (p *NodePackageManager) Build(ctx context.Context, dir string) error {
	tool, _ := p.detect(dir)
	if tool == "" {
		return fmt.Errorf("no package manager available in %s", dir)
	}
	ctx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tool, "run", "build")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s run build: %w: %s", tool, err, lastLines(string(out), 5))
	}
	return nil
}

// lastLines keeps error output readable on multi-page tool failures
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
