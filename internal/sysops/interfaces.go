// Package sysops wraps the external tools the watchdog drives (version
// control, the package manager, the process supervisor) behind
// capability interfaces so the state machine and pipeline can be tested
// against fakes.
package sysops

import "context"

// VersionControl drives the service checkout as a black box
type VersionControl interface {
	// IsRepo reports whether dir is a version-controlled checkout
	IsRepo(dir string) bool
	// CurrentRevision returns the checked-out revision identifier
	CurrentRevision(ctx context.Context, dir string) (string, error)
	// IsClean reports whether the working tree has no local modifications
	IsClean(ctx context.Context, dir string) (bool, error)
	// Fetch updates remote tracking refs
	Fetch(ctx context.Context, dir string) error
	// CommitsBehind returns how many commits the remote head is ahead
	CommitsBehind(ctx context.Context, dir string) (int, error)
	// IncomingMessages returns the commit messages between HEAD and the
	// remote head, newest first
	IncomingMessages(ctx context.Context, dir string) ([]string, error)
	// CheckoutRevision moves the working tree to an exact revision
	CheckoutRevision(ctx context.Context, dir, revision string) error
	// UpdateToRemoteHead fast-forwards the working tree to the remote head
	UpdateToRemoteHead(ctx context.Context, dir string) error
}

// PackageManager reinstalls dependencies and runs the declared build step
type PackageManager interface {
	// Available reports whether a usable package manager exists for dir
	Available(dir string) bool
	// LockfilePath returns the dependency lockfile path, "" if none
	LockfilePath(dir string) string
	// Install reinstalls dependencies from the manifest
	Install(ctx context.Context, dir string) error
	// HasBuildStep reports whether the manifest declares a build script
	HasBuildStep(dir string) bool
	// Build runs the declared build step
	Build(ctx context.Context, dir string) error
}

// ServiceSupervisor starts and stops the managed service process
type ServiceSupervisor interface {
	// Restart issues a supervised restart, falling back to kill+relaunch
	Restart(ctx context.Context, name string) error
	// Stop halts the service
	Stop(ctx context.Context, name string) error
	// Start launches the service
	Start(ctx context.Context, name string) error
}
