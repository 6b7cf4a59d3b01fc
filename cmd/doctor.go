package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/scienceol/devbox/internal/config"
	"github.com/scienceol/devbox/internal/power"
	"github.com/scienceol/devbox/internal/relay"
	"github.com/scienceol/devbox/internal/runner"
	"github.com/scienceol/devbox/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check sleep inhibition and terminal support on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Flags{})
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		p := ui.NewPrinter(os.Stderr)
		rc := runnerConfig(cfg, p, zap.NewNop())

		p.KeyValue("Config dir", config.Dir())
		p.KeyValue("Relay", relay.Select(cfg.Mode).Name())
		p.KeyValue("Idle timeout", runner.New(rc).ResolveIdleTimeout().String())
		p.KeyValue("Stdin tty", strconv.FormatBool(term.IsTerminal(int(os.Stdin.Fd()))))
		p.KeyValue("Stdout tty", strconv.FormatBool(term.IsTerminal(int(os.Stdout.Fd()))))
		p.KeyValue("Backend", rc.Backend.Name())

		if err := rc.Backend.Acquire("devbox doctor"); err != nil {
			if errors.Is(err, power.ErrDisabled) {
				p.Info("sleep inhibition disabled by configuration")
				return nil
			}
			p.Warn("sleep inhibition unavailable: %v", err)
			return nil
		}
		rc.Backend.Release()
		p.Success("sleep inhibition works")
		return nil
	},
}
