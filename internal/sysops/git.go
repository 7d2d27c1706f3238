package sysops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/svcguard/internal/retry"
)

// gitTimeout bounds any single git invocation. Fetches against a slow
// remote are the worst case.
const gitTimeout = 120 * time.Second

// GitVCS implements VersionControl by shelling out to git
type GitVCS struct{}

// NewGitVCS creates a git-backed VersionControl
func NewGitVCS() *GitVCS {
	return &GitVCS{}
}

func (g *GitVCS) git(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *GitVCS) IsRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

func (g *GitVCS) CurrentRevision(ctx context.Context, dir string) (string, error) {
	return g.git(ctx, dir, "rev-parse", "HEAD")
}

func (g *GitVCS) IsClean(ctx context.Context, dir string) (bool, error) {
	out, err := g.git(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

// Fetch retries because it is the only git operation that needs the
// network
func (g *GitVCS) Fetch(ctx context.Context, dir string) error {
	return retry.Do(ctx, retry.DefaultPolicy(), func() error {
		_, err := g.git(ctx, dir, "fetch", "--quiet")
		return err
	})
}

func (g *GitVCS) CommitsBehind(ctx context.Context, dir string) (int, error) {
	out, err := g.git(ctx, dir, "rev-list", "--count", "HEAD..@{u}")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("unexpected rev-list output %q: %w", out, err)
	}
	return n, nil
}

func (g *GitVCS) IncomingMessages(ctx context.Context, dir string) ([]string, error) {
	out, err := g.git(ctx, dir, "log", "--format=%s", "HEAD..@{u}")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *GitVCS) CheckoutRevision(ctx context.Context, dir, revision string) error {
	_, err := g.git(ctx, dir, "checkout", "--force", revision)
	return err
}

func (g *GitVCS) UpdateToRemoteHead(ctx context.Context, dir string) error {
	_, err := g.git(ctx, dir, "merge", "--ff-only", "@{u}")
	return err
}
