package recovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/snapshot"
	"github.com/psantana5/svcguard/internal/store"
)

type fakeVCS struct {
	repo       bool
	revision   string
	checkedOut []string
}

func (f *fakeVCS) IsRepo(dir string) bool { return f.repo }
func (f *fakeVCS) CurrentRevision(ctx context.Context, dir string) (string, error) {
	return f.revision, nil
}
func (f *fakeVCS) IsClean(ctx context.Context, dir string) (bool, error)      { return true, nil }
func (f *fakeVCS) Fetch(ctx context.Context, dir string) error                { return nil }
func (f *fakeVCS) CommitsBehind(ctx context.Context, dir string) (int, error) { return 0, nil }
func (f *fakeVCS) IncomingMessages(ctx context.Context, dir string) ([]string, error) {
	return nil, nil
}
func (f *fakeVCS) CheckoutRevision(ctx context.Context, dir, revision string) error {
	f.checkedOut = append(f.checkedOut, revision)
	return nil
}
func (f *fakeVCS) UpdateToRemoteHead(ctx context.Context, dir string) error { return nil }

type fakePkg struct{}

func (fakePkg) Available(dir string) bool                     { return false }
func (fakePkg) LockfilePath(dir string) string                { return "" }
func (fakePkg) Install(ctx context.Context, dir string) error { return nil }
func (fakePkg) HasBuildStep(dir string) bool                  { return false }
func (fakePkg) Build(ctx context.Context, dir string) error   { return nil }

type fakeSup struct {
	restarts, stops, starts int
}

func (f *fakeSup) Restart(ctx context.Context, name string) error { f.restarts++; return nil }
func (f *fakeSup) Stop(ctx context.Context, name string) error    { f.stops++; return nil }
func (f *fakeSup) Start(ctx context.Context, name string) error   { f.starts++; return nil }

type env struct {
	actuator *Actuator
	cfg      *config.Config
	snaps    *snapshot.Store
	vcs      *fakeVCS
	sup      *fakeSup
	st       *store.MemoryStore
	httpUp   *bool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	installDir := t.TempDir()
	cfg := &config.Config{
		ServiceName:    "testsvc",
		InstallDir:     installDir,
		ConfigPath:     filepath.Join(installDir, "config.json"),
		StateDir:       t.TempDir(),
		RestartTimeout: 100 * time.Millisecond,
	}
	if err := os.WriteFile(cfg.ConfigPath, []byte(`{"channels":["ops"],"model":"m1"}`), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	log := logging.New("test", logging.ERROR, false)
	vcs := &fakeVCS{repo: true, revision: "rev-original"}
	sup := &fakeSup{}
	st := store.NewMemoryStore(10)

	httpUp := true
	check := func(ctx context.Context) bool { return httpUp }
	e := &env{cfg: cfg, vcs: vcs, sup: sup, st: st, httpUp: &httpUp}

	e.snaps = snapshot.New(cfg, vcs, fakePkg{}, check, log)
	e.actuator = New(cfg, e.snaps, vcs, fakePkg{}, sup, st, check, log)
	e.actuator.pollInterval = 10 * time.Millisecond
	e.actuator.settleDelay = 10 * time.Millisecond
	return e
}

func TestActuator_RestartRecovered(t *testing.T) {
	e := newEnv(t)

	outcome := e.actuator.Restart(context.Background())
	if outcome != OutcomeRecovered {
		t.Errorf("Expected recovered, got %s", outcome)
	}
	if e.sup.restarts != 1 {
		t.Errorf("Expected 1 supervisor restart, got %d", e.sup.restarts)
	}

	events, _ := e.st.RecentEvents(5)
	if len(events) == 0 || events[0].Kind != "restart" {
		t.Error("Expected a durable restart event")
	}
}

func TestActuator_RestartStillDown(t *testing.T) {
	e := newEnv(t)
	*e.httpUp = false

	outcome := e.actuator.Restart(context.Background())
	if outcome != OutcomeStillDown {
		t.Errorf("Expected still_down, got %s", outcome)
	}

	events, _ := e.st.RecentEvents(5)
	if len(events) == 0 {
		t.Fatal("Expected a durable event even on failure")
	}
}

func TestActuator_RollbackWithoutSnapshot(t *testing.T) {
	e := newEnv(t)

	outcome := e.actuator.Rollback(context.Background())
	if outcome != OutcomeNoSnapshot {
		t.Errorf("Expected no_snapshot, got %s", outcome)
	}
	if e.sup.stops != 0 {
		t.Error("Refused rollback must not touch the service")
	}
}

func TestActuator_RollbackRestoresSnapshotState(t *testing.T) {
	e := newEnv(t)

	originalConfig, _ := os.ReadFile(e.cfg.ConfigPath)
	snap, err := e.snaps.Take(context.Background())
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}

	// Simulate a bad upgrade mutating the config and moving the checkout
	if err := os.WriteFile(e.cfg.ConfigPath, []byte(`{"broken":true}`), 0o644); err != nil {
		t.Fatalf("Failed to mutate config: %v", err)
	}
	e.vcs.revision = "rev-broken"

	outcome := e.actuator.Rollback(context.Background())
	if outcome != OutcomeRecovered {
		t.Fatalf("Expected recovered, got %s", outcome)
	}

	if len(e.vcs.checkedOut) != 1 || e.vcs.checkedOut[0] != snap.Revision {
		t.Errorf("Expected checkout of %s, got %v", snap.Revision, e.vcs.checkedOut)
	}

	restored, _ := os.ReadFile(e.cfg.ConfigPath)
	if string(restored) != string(originalConfig) {
		t.Errorf("Config not restored: got %s", restored)
	}
	if e.sup.stops != 1 || e.sup.starts != 1 {
		t.Errorf("Expected stop+start, got %d/%d", e.sup.stops, e.sup.starts)
	}

	// Rolling back to the same snapshot again is idempotent
	outcome = e.actuator.Rollback(context.Background())
	if outcome != OutcomeRecovered {
		t.Errorf("Repeated rollback should succeed, got %s", outcome)
	}
	restored, _ = os.ReadFile(e.cfg.ConfigPath)
	if string(restored) != string(originalConfig) {
		t.Error("Repeated rollback changed the restored config")
	}
}
