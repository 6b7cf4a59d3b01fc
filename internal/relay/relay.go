// Package relay runs a command while copying its output to the real stdout
// and reporting every chunk as activity.
package relay

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// readBufferSize is the size of a single read from the command's output.
const readBufferSize = 32 * 1024

// ErrPTYUnavailable is returned by a PTY relay that cannot allocate a
// pseudo-terminal. Callers fall back to the pipe relay.
var ErrPTYUnavailable = errors.New("pseudo-terminal unavailable")

// Pulser receives one Pulse per chunk of output.
type Pulser interface {
	Pulse()
}

// PulseFunc adapts a function to Pulser.
type PulseFunc func()

func (f PulseFunc) Pulse() { f() }

// Relay starts a command with its stdout and stderr captured and streams
// what it writes to out, in order, pulsing p once per chunk.
type Relay interface {
	Name() string
	Start(cmd *exec.Cmd, out io.Writer, p Pulser) (*Session, error)
}

// Mode selects a relay strategy.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModePTY  Mode = "pty"
	ModePipe Mode = "pipe"
)

// ParseMode parses a relay mode; the empty string means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModePTY, ModePipe:
		return m, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q (want auto, pty or pipe)", s)
	}
}

// Select returns the relay for mode. ModeAuto picks the PTY relay where the
// platform has one by default and the pipe relay otherwise.
func Select(mode Mode) Relay {
	switch mode {
	case ModePTY:
		return PTY{}
	case ModePipe:
		return Pipe{}
	default:
		if ptyByDefault {
			return PTY{}
		}
		return Pipe{}
	}
}

// Session is one running command and the goroutine relaying its output.
type Session struct {
	process *os.Process

	stop     chan struct{}
	stopOnce sync.Once

	done     chan struct{}
	exitCode int
	err      error
}

func newSession(process *os.Process) *Session {
	return &Session{
		process: process,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Process returns the running command's process.
func (s *Session) Process() *os.Process {
	return s.process
}

// Done is closed once the output is drained and the process has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until Done and returns the process exit code. err is set
// only when the exit status could not be determined.
func (s *Session) Wait() (int, error) {
	<-s.done
	return s.exitCode, s.err
}

// Stop asks the relay loop to stop reading. The session still finishes
// only after the process exits.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

func (s *Session) finish(code int, err error) {
	s.exitCode = code
	s.err = err
	close(s.done)
}

// emit pulses and forwards one chunk. After a failed write the rest of the
// output is drained and dropped so the command never blocks on a full pipe.
func emit(out io.Writer, p Pulser, chunk []byte) io.Writer {
	p.Pulse()
	if _, err := out.Write(chunk); err != nil {
		return io.Discard
	}
	if f, ok := out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return io.Discard
		}
	}
	return out
}
