package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/scienceol/devbox/internal/config"
	"github.com/scienceol/devbox/internal/logging"
	"github.com/scienceol/devbox/internal/power"
	"github.com/scienceol/devbox/internal/runner"
	"github.com/scienceol/devbox/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagIdleTimeout time.Duration
	flagRelay       string
	flagNoInhibit   bool
	flagVerbose     bool
)

func init() {
	runCmd.Flags().DurationVar(&flagIdleTimeout, "idle-timeout", power.DefaultIdleTimeout,
		"Release sleep inhibition after this long without output (overrides "+config.EnvIdleTimeout+")")
	runCmd.Flags().StringVar(&flagRelay, "relay", "", "Output relay: auto, pty or pipe (default auto)")
	runCmd.Flags().BoolVar(&flagNoInhibit, "no-inhibit", false, "Do not inhibit system sleep")
	runCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Write debug logs to stderr")
	// Everything after the command name belongs to the command.
	runCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [flags] [--] command [args...]",
	Short: "Run a command while keeping the host awake",
	Long: `Runs the given command in the foreground, relaying its stdout and stderr to
this terminal. System sleep is inhibited while the command runs and released
after the idle timeout passes without any output.

The idle timeout comes from --idle-timeout, else $DEVBOX_IDLE_TIMEOUT (seconds),
else idle_timeout in the config file, else 15 minutes.

devbox exits with the command's exit code. When interrupted with Ctrl-C it
stops the command and exits 0; on SIGTERM it stops the command and exits 143.`,
	Example: `  devbox run -- docker run --rm -it -v "$PWD:/workspace" devbox/claude:latest claude
  DEVBOX_IDLE_TIMEOUT=300 devbox run --relay pipe -- make test`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Flags{
			Relay:     flagRelay,
			NoInhibit: flagNoInhibit,
			Debug:     flagVerbose,
		})
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		logger, err := logging.New(cfg.Debug)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		printer := ui.NewPrinter(os.Stderr)

		var opts []runner.Option
		if cmd.Flags().Changed("idle-timeout") {
			opts = append(opts, runner.WithIdleTimeout(flagIdleTimeout))
		}

		res, err := runner.New(runnerConfig(cfg, printer, logger)).Run(cmd.Context(), args, opts...)
		if err != nil {
			return err
		}

		if res.Interrupted {
			// Ctrl-C is how a session normally ends; don't report it as a failure.
			printer.Warn("interrupted")
			return nil
		}
		if res.ExitCode != 0 {
			return &exitCodeError{code: res.ExitCode}
		}
		return nil
	},
}

func runnerConfig(cfg *config.Config, printer *ui.Printer, logger *zap.Logger) runner.Config {
	backend := power.New()
	if cfg.NoInhibit {
		backend = power.Disabled()
	}

	rc := runner.Config{
		Mode:          cfg.Mode,
		Backend:       backend,
		CheckInterval: cfg.CheckIntervalDuration(),
		Lookup:        cfg.Lookup,
		Printer:       printer,
		Logger:        logger,
	}
	if d, ok := cfg.FileIdleTimeout(); ok {
		rc.IdleTimeout = d
	}
	return rc
}
