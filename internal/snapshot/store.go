// Package snapshot captures point-in-time service state (version,
// revision, config, lockfile, artifact and symlink inventories) into
// immutable timestamped directories, with a single "latest" symlink
// identifying the rollback target.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/sysops"
	"github.com/psantana5/svcguard/pkg/models"
)

// ErrNoSnapshot is returned when no "latest" snapshot exists. Rollback
// treats this as a hard precondition failure.
var ErrNoSnapshot = errors.New("no snapshot available")

const (
	metaFile     = "meta.json"
	configCopy   = "config.json"
	lockfileCopy = "lockfile"
	latestLink   = "latest"
)

// defaultArtifactPattern matches the plugin-like artifact files whose
// inventory the verify phase diffs. Covers both naming conventions the
// service has used.
var defaultArtifactPattern = regexp.MustCompile(`(\.plugin\.(js|ts)$|^plugin-[\w.-]+\.(js|ts)$)`)

// Store manages the snapshot directory tree
type Store struct {
	dir             string // snapshot root
	installDir      string
	configPath      string
	vcs             sysops.VersionControl
	pkg             sysops.PackageManager
	reach           func(ctx context.Context) bool
	log             *logging.Logger
	artifactPattern *regexp.Regexp
}

// New creates a snapshot store. reach reports current service
// reachability and may be nil.
func New(cfg *config.Config, vcs sysops.VersionControl, pkg sysops.PackageManager,
	reach func(ctx context.Context) bool, log *logging.Logger) *Store {
	return &Store{
		dir:             cfg.SnapshotDir(),
		installDir:      cfg.InstallDir,
		configPath:      cfg.ConfigPath,
		vcs:             vcs,
		pkg:             pkg,
		reach:           reach,
		log:             log,
		artifactPattern: defaultArtifactPattern,
	}
}

// SetArtifactPattern overrides the plugin artifact name matcher
func (s *Store) SetArtifactPattern(re *regexp.Regexp) {
	s.artifactPattern = re
}

// Take captures a new snapshot and atomically repoints "latest" to it.
// Missing optional artifacts (no git checkout, no lockfile, no config)
// are recorded as absent, never fatal.
func (s *Store) Take(ctx context.Context) (*models.Snapshot, error) {
	now := time.Now()
	snap := &models.Snapshot{
		ID:        now.Format("20060102-150405"),
		CreatedAt: now,
	}

	snapDir := filepath.Join(s.dir, snap.ID)
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	snap.Version = s.readVersion()

	if s.vcs != nil && s.vcs.IsRepo(s.installDir) {
		rev, err := s.vcs.CurrentRevision(ctx, s.installDir)
		if err != nil {
			s.log.Warn("snapshot: revision unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			snap.Revision = rev
		}
	}

	if err := copyFile(s.configPath, filepath.Join(snapDir, configCopy)); err == nil {
		snap.HasConfig = true
	} else if !os.IsNotExist(err) {
		s.log.Warn("snapshot: config copy failed", map[string]interface{}{"error": err.Error()})
	}

	if s.pkg != nil {
		if lock := s.pkg.LockfilePath(s.installDir); lock != "" {
			if err := copyFile(lock, filepath.Join(snapDir, lockfileCopy)); err == nil {
				snap.HasLockfile = true
			}
		}
	}

	snap.PluginArtifacts = s.CurrentArtifacts()
	snap.Symlinks = s.CurrentSymlinks()

	snap.ServiceStatus = "unreachable"
	if s.reach != nil && s.reach(ctx) {
		snap.ServiceStatus = "reachable"
	}

	if snap.HasConfig {
		channels, model, err := ParseServiceConfig(s.configPath)
		if err != nil {
			s.log.Warn("snapshot: config parse failed", map[string]interface{}{"error": err.Error()})
		} else {
			snap.Channels = channels
			snap.PrimaryModel = model
		}
	}

	meta, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(snapDir, metaFile), meta, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot meta: %w", err)
	}

	if err := s.repointLatest(snap.ID); err != nil {
		return nil, err
	}

	s.log.Info("snapshot taken", map[string]interface{}{
		"id": snap.ID, "revision": snap.Revision, "artifacts": len(snap.PluginArtifacts),
	})
	return snap, nil
}

// repointLatest atomically swings the latest symlink via tmp+rename
func (s *Store) repointLatest(id string) error {
	tmp := filepath.Join(s.dir, latestLink+".tmp")
	os.Remove(tmp)
	if err := os.Symlink(id, tmp); err != nil {
		return fmt.Errorf("failed to create latest symlink: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, latestLink)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to repoint latest: %w", err)
	}
	return nil
}

// Latest returns the snapshot the latest pointer identifies
func (s *Store) Latest() (*models.Snapshot, error) {
	target, err := os.Readlink(filepath.Join(s.dir, latestLink))
	if err != nil {
		return nil, ErrNoSnapshot
	}
	return s.load(filepath.Base(target))
}

// List returns all snapshots, newest first
func (s *Store) List() ([]*models.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	var snaps []*models.Snapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snap, err := s.load(entry.Name())
		if err != nil {
			s.log.Warn("skipping unreadable snapshot", map[string]interface{}{"id": entry.Name()})
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID > snaps[j].ID })
	return snaps, nil
}

func (s *Store) load(id string) (*models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id, metaFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", id, err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", id, err)
	}
	return &snap, nil
}

// ConfigCopyPath returns the path of a snapshot's config copy
func (s *Store) ConfigCopyPath(id string) string {
	return filepath.Join(s.dir, id, configCopy)
}

// CurrentArtifacts inventories plugin-like artifact files under the
// install dir, sorted, as install-dir-relative paths.
func (s *Store) CurrentArtifacts() []string {
	var artifacts []string
	filepath.Walk(s.installDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.artifactPattern.MatchString(info.Name()) {
			if rel, err := filepath.Rel(s.installDir, path); err == nil {
				artifacts = append(artifacts, rel)
			}
		}
		return nil
	})
	sort.Strings(artifacts)
	return artifacts
}

// CurrentSymlinks inventories symbolic links under the install dir,
// sorted, as install-dir-relative paths.
func (s *Store) CurrentSymlinks() []string {
	var links []string
	filepath.Walk(s.installDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() && skipDir(info.Name()) && path != s.installDir {
			return filepath.SkipDir
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if rel, relErr := filepath.Rel(s.installDir, path); relErr == nil {
				links = append(links, rel)
			}
		}
		return nil
	})
	sort.Strings(links)
	return links
}

// InstallDir exposes the managed checkout root for verify-phase checks
func (s *Store) InstallDir() string {
	return s.installDir
}

func skipDir(name string) bool {
	return name == "node_modules" || name == ".git"
}

// readVersion pulls the service version from the package manifest
func (s *Store) readVersion() string {
	data, err := os.ReadFile(filepath.Join(s.installDir, "package.json"))
	if err != nil {
		return ""
	}
	var manifest struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	return manifest.Version
}

// ParseServiceConfig extracts the channel identifiers and primary model
// from the service's JSON configuration. The config is otherwise
// treated as opaque.
func ParseServiceConfig(path string) (channels []string, primaryModel string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	if chRaw, ok := raw["channels"]; ok {
		var list []string
		if json.Unmarshal(chRaw, &list) == nil {
			channels = list
		} else {
			var obj map[string]json.RawMessage
			if json.Unmarshal(chRaw, &obj) == nil {
				for name := range obj {
					channels = append(channels, name)
				}
				sort.Strings(channels)
			}
		}
	}

	for _, key := range []string{"primaryModel", "model"} {
		if mRaw, ok := raw[key]; ok {
			var m string
			if json.Unmarshal(mRaw, &m) == nil && m != "" {
				primaryModel = m
				break
			}
		}
	}
	return channels, primaryModel, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
