package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
)

func testProber(t *testing.T, cfg *config.Config) *Prober {
	t.Helper()
	return New(cfg, logging.New("test", logging.ERROR, false))
}

func TestDefaultChannelClassifier(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"ETELEGRAM: 409 Conflict", true},
		{"error: ETELEGRAM polling failed", true},
		{"telegram send error: chat not found", true},
		{"Telegram API failure, retrying", true},
		{"polling_error EFATAL", true},
		{"info: message delivered", false},
		{"telegram message sent ok", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := DefaultChannelClassifier(tc.line); got != tc.want {
			t.Errorf("classify(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestAuxChannelOk_NoLogConfigured(t *testing.T) {
	p := testProber(t, &config.Config{})
	if !p.auxChannelOk() {
		t.Error("No configured log path must be healthy")
	}
}

func TestAuxChannelOk_MissingLogFile(t *testing.T) {
	p := testProber(t, &config.Config{
		ServiceLogPath: filepath.Join(t.TempDir(), "absent.log"),
	})
	if !p.auxChannelOk() {
		t.Error("A missing log file must be healthy")
	}
}

func TestAuxChannelOk_ErrorThreshold(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "service.log")
	p := testProber(t, &config.Config{ServiceLogPath: logPath})

	// Up to the threshold is still ok
	lines := []string{
		"info: started",
		"ETELEGRAM: 409 Conflict",
		"ETELEGRAM: 409 Conflict",
		"ETELEGRAM: 409 Conflict",
	}
	if err := os.WriteFile(logPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	if !p.auxChannelOk() {
		t.Errorf("%d matches should not trip the threshold", auxErrorThreshold)
	}

	lines = append(lines, "ETELEGRAM: 409 Conflict")
	if err := os.WriteFile(logPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	if p.auxChannelOk() {
		t.Errorf("More than %d matches must trip the threshold", auxErrorThreshold)
	}
}

func TestAuxChannelOk_StaleLogIgnored(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "service.log")
	content := strings.Repeat("ETELEGRAM: 409 Conflict\n", 10)
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}

	// Backdate the file past the scan window
	old := time.Now().Add(-3 * time.Minute)
	if err := os.Chtimes(logPath, old, old); err != nil {
		t.Fatalf("Failed to backdate log: %v", err)
	}

	p := testProber(t, &config.Config{ServiceLogPath: logPath})
	if !p.auxChannelOk() {
		t.Error("Errors outside the scan window must not count")
	}
}

func TestProbeHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	port := serverPort(t, srv.URL)
	p := testProber(t, &config.Config{
		ServicePort:    port,
		HealthEndpoint: "/health",
	})
	if !p.ProbeHTTP(context.Background()) {
		t.Error("Healthy endpoint should probe up")
	}

	// Root fallback: no health endpoint configured, root 404s
	p = testProber(t, &config.Config{ServicePort: port})
	if p.ProbeHTTP(context.Background()) {
		t.Error("A 404 root with no health endpoint should probe down")
	}
}

func TestProbeHTTP_RootHealthEndpointProbedOnce(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := testProber(t, &config.Config{
		ServicePort:    serverPort(t, srv.URL),
		HealthEndpoint: "/",
	})
	if p.ProbeHTTP(context.Background()) {
		t.Error("A 500 root should probe down")
	}
	if hits != 1 {
		t.Errorf("Root configured as health endpoint hit %d times, want 1", hits)
	}
}

func TestProbeHTTP_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	port := serverPort(t, srv.URL)
	srv.Close()

	p := testProber(t, &config.Config{
		ServicePort:    port,
		HealthEndpoint: "/health",
	})
	if p.ProbeHTTP(context.Background()) {
		t.Error("A closed server should probe down")
	}
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	content := strings.Repeat("x", 100) + "TAIL"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	got, err := tailFile(path, 4)
	if err != nil {
		t.Fatalf("tailFile failed: %v", err)
	}
	if got != "TAIL" {
		t.Errorf("Expected last 4 bytes, got %q", got)
	}

	got, err = tailFile(path, 10_000)
	if err != nil {
		t.Fatalf("tailFile failed: %v", err)
	}
	if got != content {
		t.Errorf("A cap above the file size should return the whole file")
	}

	if _, err := tailFile(filepath.Join(t.TempDir(), "absent"), 10); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func serverPort(t *testing.T, rawURL string) int {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("Failed to parse test server port: %v", err)
	}
	return port
}
