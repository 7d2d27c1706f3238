package models

import "time"

// Snapshot is an immutable capture of the service's upgradable state,
// taken before any risky change. The config and lockfile copies live as
// files under the snapshot directory; this record indexes them.
type Snapshot struct {
	ID              string    `json:"id"` // timestamp-derived, e.g. 20260829-153000
	CreatedAt       time.Time `json:"created_at"`
	Version         string    `json:"version"`
	Revision        string    `json:"revision,omitempty"` // git HEAD, empty if no checkout
	HasConfig       bool      `json:"has_config"`
	HasLockfile     bool      `json:"has_lockfile"`
	PluginArtifacts []string  `json:"plugin_artifacts"` // sorted relative paths
	Symlinks        []string  `json:"symlinks"`         // sorted relative paths
	ServiceStatus   string    `json:"service_status"`   // reachability observed at capture time
	Channels        []string  `json:"channels,omitempty"`
	PrimaryModel    string    `json:"primary_model,omitempty"`
}

// Event is one durable entry in the append-only watchdog event log
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // check, restart, rollback, upgrade, alert, cleanup
	Message   string    `json:"message"`
}
