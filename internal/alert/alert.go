// Package alert gates outbound notifications behind per-severity
// cooldowns so a sustained outage cannot storm the channel. The
// transport is an interface; the watchdog core never depends on a
// concrete chat service.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/psantana5/svcguard/internal/logging"
	"github.com/psantana5/svcguard/internal/retry"
	"github.com/psantana5/svcguard/pkg/models"
)

// Severity splits alert traffic into separately-cooled classes
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
)

// Notifier delivers one alert. Implementations must be safe to call
// from short-lived invocations.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// Alerter applies enable/cooldown policy around a Notifier
type Alerter struct {
	notifier     Notifier
	enabled      bool
	critCooldown time.Duration
	warnCooldown time.Duration
	log          *logging.Logger
}

// New creates an Alerter. A nil notifier disables delivery regardless
// of enabled.
func New(notifier Notifier, enabled bool, critCooldown, warnCooldown time.Duration, log *logging.Logger) *Alerter {
	return &Alerter{
		notifier:     notifier,
		enabled:      enabled && notifier != nil,
		critCooldown: critCooldown,
		warnCooldown: warnCooldown,
		log:          log,
	}
}

// Send delivers an alert if the severity's cooldown has elapsed,
// stamping the corresponding timestamp on state. Returns true if the
// alert went out.
func (a *Alerter) Send(ctx context.Context, sev Severity, subject, message string, state *models.WatchdogState) bool {
	if !a.enabled {
		return false
	}

	now := time.Now()
	var last time.Time
	var cooldown time.Duration
	switch sev {
	case SeverityCritical:
		last, cooldown = state.LastAlertAt, a.critCooldown
	default:
		last, cooldown = state.LastWarnAlertAt, a.warnCooldown
	}

	if !last.IsZero() && now.Sub(last) < cooldown {
		a.log.Debug("alert suppressed by cooldown", map[string]interface{}{"subject": subject})
		return false
	}

	if err := a.notifier.Notify(ctx, subject, message); err != nil {
		a.log.Warn("alert delivery failed", map[string]interface{}{"error": err.Error()})
		return false
	}

	switch sev {
	case SeverityCritical:
		state.LastAlertAt = now
	default:
		state.LastWarnAlertAt = now
	}
	return true
}

// WebhookNotifier POSTs alerts as JSON to a configured URL
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook-backed Notifier. Returns nil for
// an empty URL so callers can pass it straight to New.
func NewWebhookNotifier(url string) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts the alert, retrying transient delivery failures
func (w *WebhookNotifier) Notify(ctx context.Context, subject, message string) error {
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"message": message,
	})
	if err != nil {
		return err
	}

	return retry.Do(ctx, retry.DefaultPolicy(), func() error {
		return w.post(ctx, payload)
	})
}

func (w *WebhookNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
