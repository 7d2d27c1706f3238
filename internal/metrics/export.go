package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/svcguard/pkg/models"
)

// Exporter publishes watchdog gauges. Each check cycle updates the
// gauges and rewrites a node-exporter textfile so a scraper can pick
// the values up between short-lived runs; watch mode serves the same
// registry over HTTP.
type Exporter struct {
	registry *prometheus.Registry

	healthy             prometheus.Gauge
	consecutiveFailures prometheus.Gauge
	memUsedPct          prometheus.Gauge
	diskUsedPct         prometheus.Gauge
	serviceRSSMB        prometheus.Gauge
	auxPoolMB           prometheus.Gauge
	lastAction          *prometheus.GaugeVec
}

// NewExporter creates the registry and gauges
func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.healthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svcguard_service_healthy",
		Help: "1 if the managed service passed the last check, else 0",
	})
	e.consecutiveFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svcguard_consecutive_failures",
		Help: "Consecutive failed checks since the last healthy one",
	})
	e.memUsedPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svcguard_mem_used_percent",
		Help: "System memory used percent at last sample",
	})
	e.diskUsedPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svcguard_disk_used_percent",
		Help: "Disk used percent for the service filesystem at last sample",
	})
	e.serviceRSSMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svcguard_service_rss_mb",
		Help: "Managed service resident memory in MB at last sample",
	})
	e.auxPoolMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "svcguard_aux_pool_rss_mb",
		Help: "Auxiliary subprocess pool aggregate resident memory in MB",
	})
	e.lastAction = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "svcguard_last_action",
		Help: "1 for the most recent remedial action label, else 0",
	}, []string{"action"})

	e.registry.MustRegister(e.healthy, e.consecutiveFailures, e.memUsedPct,
		e.diskUsedPct, e.serviceRSSMB, e.auxPoolMB, e.lastAction)
	return e
}

// Registry exposes the underlying registry for the HTTP handler
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Update refreshes all gauges from the current state and sample
func (e *Exporter) Update(state *models.WatchdogState, sample *models.MetricSample) {
	if state.Status == models.StatusUnhealthy {
		e.healthy.Set(0)
	} else {
		e.healthy.Set(1)
	}
	e.consecutiveFailures.Set(float64(state.ConsecutiveFailures))

	for _, action := range []models.Action{models.ActionNone, models.ActionRestart, models.ActionRollback} {
		v := 0.0
		if state.LastAction == action {
			v = 1.0
		}
		e.lastAction.WithLabelValues(string(action)).Set(v)
	}

	if sample != nil {
		e.memUsedPct.Set(sample.MemUsedPct)
		e.diskUsedPct.Set(sample.DiskUsedPct)
		e.serviceRSSMB.Set(sample.ServiceRSSMB)
		e.auxPoolMB.Set(sample.AuxProcMB)
	}
}

// WriteTextfile renders the registry in exposition format to
// <stateDir>/svcguard.prom, atomically via rename.
func (e *Exporter) WriteTextfile(stateDir string) error {
	families, err := e.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(stateDir, "svcguard.prom.*")
	if err != nil {
		return fmt.Errorf("failed to create metrics tempfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to encode metrics: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(stateDir, "svcguard.prom"))
}
