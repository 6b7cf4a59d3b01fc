//go:build !darwin && !linux && !windows

package power

func newBackend() Backend {
	return noopBackend{err: ErrUnsupported}
}
