//go:build linux

package power

import (
	"os/exec"
	"syscall"
)

func newBackend() Backend {
	return &helperBackend{
		name: "systemd-inhibit",
		command: func(path, reason string) *exec.Cmd {
			cmd := exec.Command(path,
				"--what=sleep:idle",
				"--who=devbox",
				"--why="+reason,
				"--mode=block",
				"sleep", "infinity",
			)
			// The kernel sends SIGTERM to the helper if devbox dies first.
			cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
			return cmd
		},
	}
}
