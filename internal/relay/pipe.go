package relay

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Pipe relays through one pipe shared by stdout and stderr. It works
// everywhere but the command sees a non-terminal stdout.
//
// Output is forwarded and pulsed per chunk as it arrives rather than per
// line, so a command printing a progress bar without newlines still counts
// as active.
type Pipe struct{}

func (Pipe) Name() string { return "pipe" }

func (Pipe) Start(cmd *exec.Cmd, out io.Writer, p Pulser) (*Session, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go or the read end never sees EOF.
	pw.Close()

	s := newSession(cmd.Process)
	go func() {
		pump(pr, out, p, s)
		pr.Close()
		s.finish(exitCode(cmd.Wait()))
	}()
	return s, nil
}

// pump copies r to out until EOF, a read error or Stop. Reads block; the
// stop signal is checked between them.
func pump(r io.Reader, out io.Writer, p Pulser, s *Session) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = emit(out, p, buf[:n])
		}
		if err != nil || s.stopping() {
			return
		}
	}
}
