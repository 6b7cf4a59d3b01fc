package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/scienceol/devbox/internal/ui"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "devbox",
	Short: "devbox — run an AI coding assistant in a container without letting the host sleep",
	Long: `devbox runs a long-lived command (usually a docker invocation of an AI coding
assistant) in the foreground, relays its output through a pseudo-terminal and
keeps the host awake while the command is producing output.

After a period without output (15 minutes by default) the sleep inhibition is
released so a hung session cannot keep the machine awake forever. The command
itself keeps running.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// exitCodeError carries the command's exit code out of a RunE.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.code)
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}

	ui.NewPrinter(os.Stderr).Error("%v", err)
	if errors.Is(err, exec.ErrNotFound) {
		os.Exit(127)
	}
	os.Exit(1)
}
