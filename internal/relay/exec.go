package relay

import (
	"errors"
	"os/exec"
	"syscall"
)

// exitCode translates the result of cmd.Wait into a shell-style exit code:
// the process's own status, or 128+signo when a signal killed it. err is
// returned only when no exit status exists at all.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
