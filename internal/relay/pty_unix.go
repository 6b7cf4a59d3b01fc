//go:build unix

package relay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const ptyByDefault = true

// pollTimeoutMs bounds each wait for output so Stop is noticed promptly.
const pollTimeoutMs = 500

// PTY relays through a pseudo-terminal so the command keeps its interactive
// behavior (colors, progress bars, line buffering). Stdin is left to the
// caller; only stdout and stderr are attached to the terminal.
type PTY struct{}

func (PTY) Name() string { return "pty" }

func (PTY) Start(cmd *exec.Cmd, out io.Writer, p Pulser) (*Session, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPTYUnavailable, err)
	}
	inheritSize(ptmx)

	cmd.Stdout = tty
	cmd.Stderr = tty

	if err := cmd.Start(); err != nil {
		ptmx.Close()
		tty.Close()
		return nil, err
	}
	// Close the slave in the parent after the child has inherited it, so the
	// master reports end-of-stream once the child is gone.
	tty.Close()

	s := newSession(cmd.Process)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for {
			select {
			case <-winch:
				inheritSize(ptmx)
			case <-s.done:
				return
			}
		}
	}()

	go func() {
		pumpPTY(ptmx, out, p, s)
		signal.Stop(winch)
		ptmx.Close()
		s.finish(exitCode(cmd.Wait()))
	}()
	return s, nil
}

// pumpPTY reads the master side until end-of-stream, a descriptor error or
// Stop. EIO is how Linux reports that every slave descriptor is closed.
func pumpPTY(ptmx *os.File, out io.Writer, p Pulser, s *Session) {
	fd := int(ptmx.Fd())
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	buf := make([]byte, readBufferSize)

	for !s.stopping() {
		ready, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if ready == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return
		}
		if n == 0 {
			return
		}
		out = emit(out, p, buf[:n])
	}
}

// inheritSize copies the window size of our stdin onto the pty when stdin
// is a terminal.
func inheritSize(ptmx *os.File) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	_ = pty.InheritSize(os.Stdin, ptmx)
}
