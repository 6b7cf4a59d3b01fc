//go:build darwin

package power

import (
	"os"
	"os/exec"
	"strconv"
)

func newBackend() Backend {
	return &helperBackend{
		name: "caffeinate",
		command: func(path, reason string) *exec.Cmd {
			// -i: prevent idle sleep
			// -s: prevent system sleep (AC power)
			// -w <pid>: exit automatically when devbox dies
			return exec.Command(path, "-is", "-w", strconv.Itoa(os.Getpid()))
		},
	}
}
