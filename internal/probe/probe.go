// Package probe runs the independent liveness checks and resource
// sampling the escalator consumes. Probes never mutate watchdog state;
// the one mutating side effect (auxiliary pool cleanup on a critical
// memory breach) is confined to resource sampling.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/psantana5/svcguard/internal/config"
	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/pkg/models"
)

const (
	httpProbeTimeout = 10 * time.Second
	portProbeTimeout = 2 * time.Second

	// Aux channel log scan window and failure threshold
	auxLogWindow      = 2 * time.Minute
	auxErrorThreshold = 3
	auxLogTailBytes   = 64 * 1024
)

// ChannelClassifier decides whether a service log line indicates an
// auxiliary channel error. Pluggable so the matching rules can be
// swapped and tested independently.
type ChannelClassifier func(line string) bool

var defaultChannelPattern = regexp.MustCompile(`(?i)(ETELEGRAM|telegram.*(error|fail)|polling_error)`)

// DefaultChannelClassifier matches the known Telegram error signatures
func DefaultChannelClassifier(line string) bool {
	return defaultChannelPattern.MatchString(line)
}

// Prober runs liveness checks against the managed service
type Prober struct {
	cfg        *config.Config
	log        *logging.Logger
	client     *http.Client
	classifier ChannelClassifier
}

// New creates a Prober with the default channel classifier
func New(cfg *config.Config, log *logging.Logger) *Prober {
	return &Prober{
		cfg:        cfg,
		log:        log,
		client:     &http.Client{Timeout: httpProbeTimeout},
		classifier: DefaultChannelClassifier,
	}
}

// SetChannelClassifier overrides the aux channel error matcher
func (p *Prober) SetChannelClassifier(c ChannelClassifier) {
	p.classifier = c
}

// Probe runs one round of liveness checks
func (p *Prober) Probe(ctx context.Context) models.ProbeResult {
	result := models.ProbeResult{
		ProcessUp:    p.processUp(ctx),
		HTTPUp:       p.httpUp(ctx),
		AuxChannelOk: p.auxChannelOk(),
	}

	if !result.ProcessUp {
		result.Issues = append(result.Issues, models.IssueProcessDown)
	}
	if !result.HTTPUp {
		result.Issues = append(result.Issues, models.IssueHTTPDown)
	}
	if !result.AuxChannelOk {
		result.Issues = append(result.Issues, models.IssueTelegramErrors)
	}
	return result
}

// processUp is true if the process can be found by name or the service
// port is bound. Port binding counts because a renamed binary is still
// the service.
func (p *Prober) processUp(ctx context.Context) bool {
	if pid, _ := findProcess(ctx, p.cfg.ServiceName); pid != 0 {
		return true
	}
	return p.portBound()
}

func (p *Prober) portBound() bool {
	addr := fmt.Sprintf("127.0.0.1:%d", p.cfg.ServicePort)
	conn, err := net.DialTimeout("tcp", addr, portProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// httpUp tries the health endpoint, then falls back to the root unless
// the health endpoint already is the root. Any 2xx/3xx counts.
func (p *Prober) httpUp(ctx context.Context) bool {
	paths := []string{p.cfg.HealthEndpoint, "/"}
	if p.cfg.HealthEndpoint == "" || p.cfg.HealthEndpoint == "/" {
		paths = []string{"/"}
	}
	for _, path := range paths {
		if p.tryHTTP(ctx, p.cfg.ServiceURL()+path) {
			return true
		}
	}
	return false
}

// ProbeHTTP is the single-endpoint recheck used after a remedial action
func (p *Prober) ProbeHTTP(ctx context.Context) bool {
	return p.httpUp(ctx)
}

func (p *Prober) tryHTTP(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// auxChannelOk scans the recent service log for channel error
// signatures. An unconfigured or quiet log is healthy.
func (p *Prober) auxChannelOk() bool {
	path := p.cfg.ServiceLogPath
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	if err != nil {
		// No log file means nothing to inspect
		return true
	}
	if time.Since(info.ModTime()) > auxLogWindow {
		// Nothing written in the scan window
		return true
	}

	tail, err := tailFile(path, auxLogTailBytes)
	if err != nil {
		p.log.Warn("failed to read service log", map[string]interface{}{"path": path, "error": err.Error()})
		return true
	}

	count := 0
	for _, line := range strings.Split(tail, "\n") {
		if p.classifier(line) {
			count++
		}
	}
	return count <= auxErrorThreshold
}

// tailFile reads up to maxBytes from the end of a file
func tailFile(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}
	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return "", err
	}
	return string(buf), nil
}
