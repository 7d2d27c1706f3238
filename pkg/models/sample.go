package models

// MetricSample is one point-in-time resource measurement. Samples are
// append-only; the store evicts the oldest beyond the retention cap.
type MetricSample struct {
	TimestampSec int64   `json:"ts"`
	MemUsedPct   float64 `json:"mem_used_pct"`
	MemAvailMB   float64 `json:"mem_avail_mb"`
	DiskUsedPct  float64 `json:"disk_used_pct"`
	ServiceRSSMB float64 `json:"service_rss_mb"`
	AuxProcMB    float64 `json:"aux_proc_mb"`
}

// ResourceReport classifies a sample against configured thresholds.
// Warnings and criticals are advisory: they alert but never feed the
// failure counter.
type ResourceReport struct {
	Warnings  []string `json:"warnings,omitempty"`
	Criticals []string `json:"criticals,omitempty"`
}

// HasCritical returns true if any metric breached its critical threshold
func (r ResourceReport) HasCritical() bool {
	return len(r.Criticals) > 0
}

// HasWarning returns true if any metric breached its warn threshold
func (r ResourceReport) HasWarning() bool {
	return len(r.Warnings) > 0
}

// ProbeResult aggregates one cycle's liveness checks
type ProbeResult struct {
	ProcessUp    bool        `json:"process_up"`
	HTTPUp       bool        `json:"http_up"`
	AuxChannelOk bool        `json:"aux_channel_ok"`
	Issues       []IssueCode `json:"issues,omitempty"`
}

// Healthy is the aggregate liveness verdict. The aux channel is advisory
// and never fails the service on its own.
func (p ProbeResult) Healthy() bool {
	return p.ProcessUp && p.HTTPUp
}
