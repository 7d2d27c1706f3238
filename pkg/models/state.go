package models

import (
	"fmt"
	"time"
)

// Status represents the watchdog's view of the managed service
type Status string

const (
	StatusHealthy    Status = "healthy"     // Process and HTTP both responding
	StatusUnhealthy  Status = "unhealthy"   // One or more probes failing
	StatusRecovered  Status = "recovered"   // A restart brought the service back
	StatusRolledBack Status = "rolled_back" // A rollback brought the service back
)

// Action is a remedial action the watchdog can take
type Action string

const (
	ActionNone     Action = "none"
	ActionRestart  Action = "restart"
	ActionRollback Action = "rollback"
)

// IssueCode identifies a specific problem detected during a check
type IssueCode string

const (
	IssueProcessDown    IssueCode = "process_down"
	IssueHTTPDown       IssueCode = "http_down"
	IssueTelegramErrors IssueCode = "telegram_errors"
	IssueResourceWarn   IssueCode = "resource_warn"
	IssueResourceCrit   IssueCode = "resource_crit"
)

// WatchdogState is the singleton record tracking service health across
// check cycles. It is mutated only by the escalator and the actuator;
// status readers tolerate stale values.
type WatchdogState struct {
	Status                Status      `json:"status"`
	ConsecutiveFailures   uint        `json:"consecutive_failures"`
	LastHealthyAt         time.Time   `json:"last_healthy_at,omitempty"`
	LastCheckAt           time.Time   `json:"last_check_at,omitempty"`
	LastIssues            []IssueCode `json:"last_issues,omitempty"`
	LastAction            Action      `json:"last_action"`
	LastActionAt          time.Time   `json:"last_action_at,omitempty"`
	LastAlertAt           time.Time   `json:"last_alert_at,omitempty"`
	LastWarnAlertAt       time.Time   `json:"last_warn_alert_at,omitempty"`
	LastResourceCleanupAt time.Time   `json:"last_resource_cleanup_at,omitempty"`
}

// NewWatchdogState returns the state used before any check has run
func NewWatchdogState() *WatchdogState {
	return &WatchdogState{
		Status:     StatusHealthy,
		LastAction: ActionNone,
	}
}

// HasIssue reports whether a specific issue was present on the last check
func (s *WatchdogState) HasIssue(code IssueCode) bool {
	for _, c := range s.LastIssues {
		if c == code {
			return true
		}
	}
	return false
}

// validStatusTransitions maps from-status to allowed to-statuses
var validStatusTransitions = map[Status]map[Status]bool{
	StatusHealthy: {
		StatusHealthy:   true, // Healthy → Healthy (steady state)
		StatusUnhealthy: true, // Healthy → Unhealthy (probe failure)
	},
	StatusUnhealthy: {
		StatusUnhealthy:  true, // Unhealthy → Unhealthy (counter climbing)
		StatusHealthy:    true, // Unhealthy → Healthy (self-recovered)
		StatusRecovered:  true, // Unhealthy → Recovered (restart worked)
		StatusRolledBack: true, // Unhealthy → RolledBack (rollback worked)
	},
	StatusRecovered: {
		StatusHealthy:   true, // Recovered → Healthy (next clean check)
		StatusUnhealthy: true, // Recovered → Unhealthy (failed again)
		StatusRecovered: true,
	},
	StatusRolledBack: {
		StatusHealthy:    true, // RolledBack → Healthy (next clean check)
		StatusUnhealthy:  true, // RolledBack → Unhealthy (still broken)
		StatusRolledBack: true,
	},
}

// ValidateStatusTransition checks if a status change is valid
func ValidateStatusTransition(from, to Status) error {
	allowed, exists := validStatusTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsDegraded returns true if the status indicates the service needs attention
func IsDegraded(s Status) bool {
	return s == StatusUnhealthy
}
