package upgrade

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/recovery"
	"github.com/psantana5/svcguard/internal/snapshot"
	"github.com/psantana5/svcguard/internal/store"
	"github.com/psantana5/svcguard/pkg/models"
)

type fakeSnaps struct {
	latest     *models.Snapshot
	latestErr  error
	takeCalls  int
	artifacts  []string
	symlinks   []string
	installDir string
}

func (f *fakeSnaps) Take(ctx context.Context) (*models.Snapshot, error) {
	f.takeCalls++
	if f.latest == nil {
		f.latest = &models.Snapshot{ID: "snap-test", Revision: "rev-old"}
	}
	return f.latest, nil
}

func (f *fakeSnaps) Latest() (*models.Snapshot, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	if f.latest == nil {
		return nil, snapshot.ErrNoSnapshot
	}
	return f.latest, nil
}

func (f *fakeSnaps) CurrentArtifacts() []string      { return f.artifacts }
func (f *fakeSnaps) CurrentSymlinks() []string       { return f.symlinks }
func (f *fakeSnaps) ConfigCopyPath(id string) string { return "" }
func (f *fakeSnaps) InstallDir() string              { return f.installDir }

type fakeRollback struct {
	calls   int
	outcome recovery.Outcome
}

func (f *fakeRollback) Rollback(ctx context.Context) recovery.Outcome {
	f.calls++
	return f.outcome
}

type fakeVCS struct {
	repo      bool
	clean     bool
	behind    int
	incoming  []string
	updateErr error
	updated   int
	reverts   []string
}

func (f *fakeVCS) IsRepo(dir string) bool { return f.repo }
func (f *fakeVCS) CurrentRevision(ctx context.Context, dir string) (string, error) {
	return "rev-new", nil
}
func (f *fakeVCS) IsClean(ctx context.Context, dir string) (bool, error)      { return f.clean, nil }
func (f *fakeVCS) Fetch(ctx context.Context, dir string) error                { return nil }
func (f *fakeVCS) CommitsBehind(ctx context.Context, dir string) (int, error) { return f.behind, nil }
func (f *fakeVCS) IncomingMessages(ctx context.Context, dir string) ([]string, error) {
	return f.incoming, nil
}
func (f *fakeVCS) CheckoutRevision(ctx context.Context, dir, revision string) error {
	f.reverts = append(f.reverts, revision)
	return nil
}
func (f *fakeVCS) UpdateToRemoteHead(ctx context.Context, dir string) error {
	f.updated++
	return f.updateErr
}

type fakePkg struct {
	available  bool
	buildStep  bool
	installErr error
	buildErr   error
}

func (f *fakePkg) Available(dir string) bool                     { return f.available }
func (f *fakePkg) LockfilePath(dir string) string                { return "" }
func (f *fakePkg) Install(ctx context.Context, dir string) error { return f.installErr }
func (f *fakePkg) HasBuildStep(dir string) bool                  { return f.buildStep }
func (f *fakePkg) Build(ctx context.Context, dir string) error   { return f.buildErr }

type fakeSup struct {
	stops, starts int
}

func (f *fakeSup) Restart(ctx context.Context, name string) error { return nil }
func (f *fakeSup) Stop(ctx context.Context, name string) error    { f.stops++; return nil }
func (f *fakeSup) Start(ctx context.Context, name string) error   { f.starts++; return nil }

type pipeEnv struct {
	p        *Pipeline
	snaps    *fakeSnaps
	rollback *fakeRollback
	vcs      *fakeVCS
	pkg      *fakePkg
	sup      *fakeSup
}

func newPipeEnv(t *testing.T) *pipeEnv {
	t.Helper()
	installDir := t.TempDir()
	cfg := &config.Config{
		ServiceName: "testsvc",
		InstallDir:  installDir,
		ConfigPath:  filepath.Join(installDir, "config.json"),
	}
	mustWrite(t, cfg.ConfigPath, `{"channels":["alerts","ops"],"model":"m1"}`)
	mustWrite(t, filepath.Join(installDir, "package.json"), `{"version":"1.2.3"}`)

	e := &pipeEnv{
		snaps:    &fakeSnaps{installDir: installDir},
		rollback: &fakeRollback{outcome: recovery.OutcomeRecovered},
		vcs:      &fakeVCS{repo: true, clean: true},
		pkg:      &fakePkg{},
		sup:      &fakeSup{},
	}
	log := logging.New("test", logging.ERROR, false)
	check := func(ctx context.Context) bool { return true }
	e.p = New(cfg, e.snaps, e.rollback, e.vcs, e.pkg, e.sup,
		store.NewMemoryStore(10), check, log)
	return e
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func hasFinding(findings []string, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}

func TestPreflight_NoSnapshotBlocks(t *testing.T) {
	e := newPipeEnv(t)

	r, err := e.p.Preflight(context.Background())
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	if r.OK() {
		t.Error("Expected an error without a snapshot")
	}
	if !hasFinding(r.Errors, "no snapshot") {
		t.Errorf("Missing snapshot error, got %v", r.Errors)
	}
}

func TestPreflight_DirtyTreeWarns(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1", Revision: "rev-old"}
	e.vcs.clean = false

	r, _ := e.p.Preflight(context.Background())
	if !r.OK() {
		t.Fatalf("Dirty tree must warn, not block: %v", r.Errors)
	}
	if !hasFinding(r.Warnings, "dirty") {
		t.Errorf("Expected dirty tree warning, got %v", r.Warnings)
	}
}

func TestPreflight_MissingVersionBlocks(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1"}
	os.Remove(filepath.Join(e.snaps.installDir, "package.json"))

	r, _ := e.p.Preflight(context.Background())
	if !hasFinding(r.Errors, "version") {
		t.Errorf("Expected version error, got %v", r.Errors)
	}
}

func TestPreflight_FlagsBreakingCommits(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1"}
	e.vcs.behind = 2
	e.vcs.incoming = []string{"fix: typo", "BREAKING: rework plugin loader"}

	r, _ := e.p.Preflight(context.Background())
	if !hasFinding(r.Warnings, "breaking") {
		t.Errorf("Expected breaking commit warning, got %v", r.Warnings)
	}
}

func TestRun_DryRunStopsBeforeSnapshot(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1", Revision: "rev-old"}
	e.vcs.behind = 3

	r, err := e.p.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Dry run failed: %v", err)
	}
	if e.snaps.takeCalls != 0 {
		t.Error("Dry run must not take a snapshot")
	}
	if e.vcs.updated != 0 {
		t.Error("Dry run must not touch the checkout")
	}
	if !hasFinding(r.Infos, "dry run") {
		t.Errorf("Expected dry run notice, got %v", r.Infos)
	}
}

func TestRun_NothingToUpgrade(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1"}
	e.vcs.behind = 0

	r, err := e.p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if e.snaps.takeCalls != 0 {
		t.Error("No snapshot should be taken when already current")
	}
	if !hasFinding(r.Infos, "nothing to upgrade") {
		t.Errorf("Expected nothing-to-upgrade notice, got %v", r.Infos)
	}
}

func TestRun_UpdateFailureRevertsCheckout(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1", Revision: "rev-old"}
	e.vcs.behind = 1
	e.vcs.updateErr = errors.New("merge conflict")

	_, err := e.p.Run(context.Background(), false)
	if err == nil {
		t.Fatal("Expected an error from the failed update")
	}
	if len(e.vcs.reverts) != 1 || e.vcs.reverts[0] != "rev-old" {
		t.Errorf("Expected checkout reversal to rev-old, got %v", e.vcs.reverts)
	}
	if e.sup.starts == 0 {
		t.Error("Service must be started again after reversal")
	}
	if e.rollback.calls != 0 {
		t.Error("A failed update reverts the checkout, it does not roll back")
	}
}

func TestRun_BuildFailureRollsBack(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{ID: "snap-1", Revision: "rev-old"}
	e.vcs.behind = 1
	e.pkg.available = true
	e.pkg.buildStep = true
	e.pkg.buildErr = errors.New("tsc exited 2")

	_, err := e.p.Run(context.Background(), false)
	if err == nil {
		t.Fatal("Expected an error from the failed build")
	}
	if e.rollback.calls != 1 {
		t.Errorf("Expected one full rollback, got %d", e.rollback.calls)
	}
	if !strings.Contains(err.Error(), "rollback outcome") {
		t.Errorf("Error should carry the rollback outcome: %v", err)
	}
}

func TestRun_CleanUpgradeVerifies(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.latest = &models.Snapshot{
		ID:       "snap-1",
		Revision: "rev-old",
		Channels: []string{"alerts", "ops"},
	}
	e.vcs.behind = 1
	e.pkg.available = true

	r, err := e.p.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if e.snaps.takeCalls != 1 {
		t.Errorf("Expected one pre-upgrade snapshot, got %d", e.snaps.takeCalls)
	}
	if !r.OK() {
		t.Errorf("Clean upgrade should verify without errors: %v", r.Errors)
	}
	if e.sup.stops != 1 || e.sup.starts != 1 {
		t.Errorf("Expected stop+start around the upgrade, got %d/%d", e.sup.stops, e.sup.starts)
	}
}

func TestVerify_MissingChannelIsFatal(t *testing.T) {
	e := newPipeEnv(t)
	snap := &models.Snapshot{
		ID:       "snap-1",
		Channels: []string{"alerts", "ops", "billing"},
	}

	r, err := e.p.Verify(context.Background(), snap)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !hasFinding(r.Errors, `"billing"`) {
		t.Errorf("Expected missing channel error, got %v", r.Errors)
	}
}

func TestVerify_ModelChanges(t *testing.T) {
	e := newPipeEnv(t)

	r, _ := e.p.Verify(context.Background(), &models.Snapshot{PrimaryModel: "m2"})
	if !hasFinding(r.Warnings, "changed") {
		t.Errorf("Expected model change warning, got %v", r.Warnings)
	}

	mustWrite(t, e.p.cfg.ConfigPath, `{"channels":[]}`)
	r, _ = e.p.Verify(context.Background(), &models.Snapshot{PrimaryModel: "m1"})
	if !hasFinding(r.Errors, "no longer configured") {
		t.Errorf("Expected missing model error, got %v", r.Errors)
	}
}

func TestVerify_RenamedArtifactGetsHint(t *testing.T) {
	e := newPipeEnv(t)
	e.snaps.artifacts = []string{"plugins/plugin-weather.js"}
	snap := &models.Snapshot{PluginArtifacts: []string{"plugins/weather.plugin.js"}}

	r, _ := e.p.Verify(context.Background(), snap)
	if !hasFinding(r.Warnings, "possibly now plugins/plugin-weather.js") {
		t.Errorf("Expected rename hint, got %v", r.Warnings)
	}
	if !hasFinding(r.Infos, "new artifact") {
		t.Errorf("Expected new artifact notice, got %v", r.Infos)
	}
}

func TestDefaultBreakingChangeClassifier(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"BREAKING: drop node 16", true},
		{"feat: incompatible config format", true},
		{"chore: migration required for plugins", true},
		{"fix: typo in readme", false},
		{"feat: add weather plugin", false},
	}
	for _, tc := range cases {
		if got := DefaultBreakingChangeClassifier(tc.message); got != tc.want {
			t.Errorf("classify(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestDefaultRenameHinter(t *testing.T) {
	added := []string{"plugins/plugin-weather.js", "plugins/news.plugin.ts", "other.js"}

	cases := []struct {
		removed string
		want    string
	}{
		{"plugins/weather.plugin.js", "plugins/plugin-weather.js"},
		{"plugins/plugin-news.ts", "plugins/news.plugin.ts"},
		{"plugins/unrelated.plugin.js", ""},
		{"other.js", ""},
	}
	for _, tc := range cases {
		if got := DefaultRenameHinter(tc.removed, added); got != tc.want {
			t.Errorf("hint(%q) = %q, want %q", tc.removed, got, tc.want)
		}
	}
}
