//go:build windows

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/UserExistsError/conpty"
	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

// The pipe relay is the default on Windows; ConPTY is opt-in.
const ptyByDefault = false

// PTY relays through a Windows pseudo console (ConPTY).
type PTY struct{}

func (PTY) Name() string { return "conpty" }

func (PTY) Start(cmd *exec.Cmd, out io.Writer, p Pulser) (*Session, error) {
	if !conpty.IsConPtyAvailable() {
		return nil, ErrPTYUnavailable
	}

	opts := []conpty.ConPtyOption{conpty.ConPtyEnv(cmd.Environ())}
	if cmd.Dir != "" {
		opts = append(opts, conpty.ConPtyWorkDir(cmd.Dir))
	}
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		opts = append(opts, conpty.ConPtyDimensions(w, h))
	}

	cpty, err := conpty.Start(windows.ComposeCommandLine(cmd.Args), opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPTYUnavailable, err)
	}

	process, err := os.FindProcess(cpty.Pid())
	if err != nil {
		cpty.Close()
		return nil, fmt.Errorf("find conpty process: %w", err)
	}

	if cmd.Stdin != nil {
		go func() { _, _ = io.Copy(cpty, cmd.Stdin) }()
	}

	s := newSession(process)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		pump(cpty, out, p, s)
	}()
	go func() {
		code, err := cpty.Wait(context.Background())
		// The pseudo console keeps its output pipe open after the process
		// exits; closing it ends the read loop.
		cpty.Close()
		<-drained
		if err != nil && !errors.Is(err, context.Canceled) {
			s.finish(-1, err)
			return
		}
		s.finish(int(code), nil)
	}()
	return s, nil
}
