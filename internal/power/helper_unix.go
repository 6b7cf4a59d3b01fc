//go:build darwin || linux

package power

import (
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// settleTime is how long a helper process must survive after start before
// the inhibition counts as held. systemd-inhibit exits at once when logind
// is unreachable, which is common inside containers.
const settleTime = 150 * time.Millisecond

// helperBackend holds the inhibition for as long as a helper process runs.
type helperBackend struct {
	name    string
	command func(path, reason string) *exec.Cmd

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan error
}

func (h *helperBackend) Name() string { return h.name }

func (h *helperBackend) Acquire(reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd != nil {
		return nil // already held
	}

	path, err := exec.LookPath(h.name)
	if err != nil {
		return fmt.Errorf("%s not found: %w", h.name, err)
	}

	cmd := h.command(path, reason)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", h.name, err)
	}

	// Reap the child in background so it doesn't become a zombie.
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		if err == nil {
			return fmt.Errorf("%s exited immediately", h.name)
		}
		return fmt.Errorf("%s exited immediately: %w", h.name, err)
	case <-time.After(settleTime):
	}

	h.cmd = cmd
	h.exited = exited
	return nil
}

func (h *helperBackend) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Kill()
	select {
	case <-h.exited:
	case <-time.After(time.Second):
	}
	h.cmd = nil
	h.exited = nil
}
