// Package power keeps the host awake while a long command runs and lets the
// inhibition lapse once the command has been silent for too long.
package power

import "errors"

var (
	// ErrUnsupported is returned by Acquire when the platform has no
	// sleep-inhibition mechanism devbox knows how to drive.
	ErrUnsupported = errors.New("sleep inhibition not supported on this platform")

	// ErrDisabled is returned by the backend from Disabled.
	ErrDisabled = errors.New("sleep inhibition disabled")
)

// Backend is a platform sleep-inhibition primitive.
type Backend interface {
	// Name identifies the mechanism in diagnostics (e.g. "systemd-inhibit").
	Name() string

	// Acquire starts inhibiting system sleep. An error means the mechanism
	// is unavailable; callers treat it as non-fatal.
	Acquire(reason string) error

	// Release ends the inhibition. Safe to call when nothing is held.
	Release()
}

// New returns the Backend for the current platform.
// See backend_darwin.go, backend_linux.go, backend_windows.go, backend_other.go.
func New() Backend {
	return newBackend()
}

// Disabled returns a Backend that never inhibits and reports ErrDisabled.
func Disabled() Backend {
	return noopBackend{err: ErrDisabled}
}

type noopBackend struct {
	err error
}

func (n noopBackend) Name() string                { return "none" }
func (n noopBackend) Acquire(reason string) error { return n.err }
func (n noopBackend) Release()                    {}
