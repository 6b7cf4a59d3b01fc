//go:build !unix && !windows

package relay

import (
	"io"
	"os/exec"
)

const ptyByDefault = false

// PTY is unavailable on this platform; Start always fails so callers fall
// back to Pipe.
type PTY struct{}

func (PTY) Name() string { return "pty" }

func (PTY) Start(cmd *exec.Cmd, out io.Writer, p Pulser) (*Session, error) {
	return nil, ErrPTYUnavailable
}
