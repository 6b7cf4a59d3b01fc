// Package runner runs a command under sleep inhibition and relays its output.
// It knows nothing about what the command is; in practice it is a docker
// invocation built by the caller.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/scienceol/devbox/internal/config"
	"github.com/scienceol/devbox/internal/power"
	"github.com/scienceol/devbox/internal/relay"
	"github.com/scienceol/devbox/internal/ui"
	"go.uber.org/zap"
)

// ExitInterrupted is the shell convention for "stopped by Ctrl-C".
// A SIGTERM sent to devbox maps to 128+SIGTERM instead.
const ExitInterrupted = 130

const (
	// DefaultInterruptGrace is how long the command may keep running after
	// devbox is interrupted before it is killed.
	DefaultInterruptGrace = 5 * time.Second

	// drainTimeout bounds the wait for the relay after the command is killed.
	drainTimeout = 2 * time.Second

	// stdinWaitDelay bounds how long Wait blocks on copying a non-file stdin.
	stdinWaitDelay = time.Second
)

var (
	// ErrEmptyCommand is returned when the command vector is empty.
	ErrEmptyCommand = errors.New("empty command")

	// ErrLaunchFailed wraps any error starting the command.
	ErrLaunchFailed = errors.New("failed to launch command")
)

// Config holds the settings shared by every run. Zero values select defaults.
type Config struct {
	Mode          relay.Mode
	Backend       power.Backend
	CheckInterval time.Duration

	// IdleTimeout applies when neither the caller nor the environment sets one.
	IdleTimeout time.Duration

	// Lookup reads environment variables; os.LookupEnv when nil.
	Lookup func(key string) (string, bool)

	Stdout  io.Writer
	Printer *ui.Printer
	Logger  *zap.Logger

	// Signals delivers operator interrupts. When nil, Run subscribes to
	// SIGINT and SIGTERM for its own duration.
	Signals        <-chan os.Signal
	InterruptGrace time.Duration
}

// Result describes a finished run.
type Result struct {
	// ExitCode is the command's exit code, 128+signo if a signal killed
	// it, ExitInterrupted if devbox itself got Ctrl-C, or 128+signo for
	// any other signal devbox received while waiting.
	ExitCode int

	// Interrupted is set only when devbox got Ctrl-C (os.Interrupt) while
	// waiting. It tells an operator interrupt apart from a command that
	// exited 130 on its own. A SIGTERM to devbox is a termination, not an
	// interrupt, and leaves it false.
	Interrupted bool

	IdleTimeout time.Duration
	Relay       string
}

// Runner launches commands. It is safe to call Run more than once.
type Runner struct {
	cfg Config

	// selectRelay picks the relay for a mode; relay.Select outside tests.
	selectRelay func(relay.Mode) relay.Relay
}

func New(cfg Config) *Runner {
	if cfg.Backend == nil {
		cfg.Backend = power.New()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = power.DefaultIdleTimeout
	}
	if cfg.Lookup == nil {
		cfg.Lookup = os.LookupEnv
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Printer == nil {
		cfg.Printer = ui.NewPrinter(os.Stderr)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.InterruptGrace <= 0 {
		cfg.InterruptGrace = DefaultInterruptGrace
	}
	return &Runner{cfg: cfg, selectRelay: relay.Select}
}

// Option adjusts a single run.
type Option func(*request)

type request struct {
	stdin          io.Reader
	idleTimeout    time.Duration
	hasIdleTimeout bool
}

// WithStdin replaces os.Stdin as the command's standard input.
func WithStdin(r io.Reader) Option {
	return func(req *request) { req.stdin = r }
}

// WithIdleTimeout sets the idle timeout explicitly, overriding the
// environment. Zero or negative means the inhibition lapses at the first
// watchdog check.
func WithIdleTimeout(d time.Duration) Option {
	return func(req *request) {
		req.idleTimeout = d
		req.hasIdleTimeout = true
	}
}

// RunWithSleepInhibition runs argv with default settings and returns its
// exit code.
func RunWithSleepInhibition(ctx context.Context, argv []string, opts ...Option) (int, error) {
	res, err := New(Config{}).Run(ctx, argv, opts...)
	return res.ExitCode, err
}

// Run starts argv, relays its output until it exits and returns its exit
// code. Sleep inhibition is held for the duration and dropped early after
// IdleTimeout without output; the command itself is never stopped for
// being idle. Only failures to start the command are returned as errors,
// plus ctx's error if ctx ends first.
func (r *Runner) Run(ctx context.Context, argv []string, opts ...Option) (Result, error) {
	if len(argv) == 0 {
		return Result{ExitCode: -1}, ErrEmptyCommand
	}

	req := request{stdin: os.Stdin}
	for _, opt := range opts {
		opt(&req)
	}

	timeout := r.ResolveIdleTimeout(opts...)
	res := Result{ExitCode: -1, IdleTimeout: timeout}
	log := r.cfg.Logger.With(zap.String("session", uuid.NewString()))

	inhibitor := power.NewSleepInhibitor(timeout,
		power.WithBackend(r.cfg.Backend),
		power.WithCheckInterval(r.cfg.CheckInterval),
		power.WithLogger(log),
		power.WithPrinter(r.cfg.Printer),
		power.WithReason("running "+argv[0]),
		power.WithOnTimeout(func() {
			r.cfg.Printer.Warn("no output for %s; sleep inhibition released (command still running)", formatMinutes(timeout))
		}),
	)
	inhibitor.Start()
	defer inhibitor.Close()

	sess, name, err := r.start(argv, req, inhibitor, log)
	if err != nil {
		return res, err
	}
	res.Relay = name
	log.Debug("command started",
		zap.Strings("argv", argv),
		zap.String("relay", name),
		zap.Int("pid", sess.Process().Pid),
		zap.Duration("idle_timeout", timeout),
		zap.Bool("inhibiting", inhibitor.Active()),
	)

	return r.wait(ctx, sess, res, log)
}

// ResolveIdleTimeout picks the idle timeout for a run: WithIdleTimeout,
// then DEVBOX_IDLE_TIMEOUT (seconds), then Config.IdleTimeout.
func (r *Runner) ResolveIdleTimeout(opts ...Option) time.Duration {
	var req request
	for _, opt := range opts {
		opt(&req)
	}
	if req.hasIdleTimeout {
		return req.idleTimeout
	}
	if v, ok := r.cfg.Lookup(config.EnvIdleTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := config.ParseSeconds(v)
		if err == nil {
			return d
		}
		r.cfg.Printer.Warn("ignoring %s: %v", config.EnvIdleTimeout, err)
	}
	return r.cfg.IdleTimeout
}

// start launches argv with the configured relay, falling back to the pipe
// relay when no pseudo-terminal can be allocated.
func (r *Runner) start(argv []string, req request, p relay.Pulser, log *zap.Logger) (*relay.Session, string, error) {
	out := r.cfg.Printer.Guard(r.cfg.Stdout)

	strategy := r.selectRelay(r.cfg.Mode)
	sess, err := strategy.Start(command(argv, req), out, p)
	if errors.Is(err, relay.ErrPTYUnavailable) {
		log.Debug("pty unavailable, falling back to pipe", zap.Error(err))
		strategy = relay.Pipe{}
		sess, err = strategy.Start(command(argv, req), out, p)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrLaunchFailed, argv[0], err)
	}
	return sess, strategy.Name(), nil
}

func command(argv []string, req request) *exec.Cmd {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = req.stdin
	cmd.WaitDelay = stdinWaitDelay
	return cmd
}

func (r *Runner) wait(ctx context.Context, sess *relay.Session, res Result, log *zap.Logger) (Result, error) {
	signals := r.cfg.Signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	select {
	case <-sess.Done():
		code, err := sess.Wait()
		if err != nil {
			return res, fmt.Errorf("wait for command: %w", err)
		}
		res.ExitCode = code
		log.Debug("command exited", zap.Int("exit_code", code))
		return res, nil

	case sig := <-signals:
		log.Debug("interrupted", zap.Stringer("signal", sig))
		res.ExitCode, res.Interrupted = signalExitCode(sig)
		r.interrupt(sess, sig, log)
		return res, nil

	case <-ctx.Done():
		log.Debug("context done, killing command", zap.Error(ctx.Err()))
		r.kill(sess, log)
		return res, ctx.Err()
	}
}

// interrupt passes sig on to the command and gives it the grace period to
// exit before killing it. The relay keeps draining output meanwhile.
func (r *Runner) interrupt(sess *relay.Session, sig os.Signal, log *zap.Logger) {
	if err := sess.Process().Signal(sig); err != nil {
		log.Debug("forward signal", zap.Error(err))
	}
	select {
	case <-sess.Done():
		return
	case <-time.After(r.cfg.InterruptGrace):
	}
	log.Debug("command still running after grace period", zap.Duration("grace", r.cfg.InterruptGrace))
	r.kill(sess, log)
}

func (r *Runner) kill(sess *relay.Session, log *zap.Logger) {
	if err := sess.Process().Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		log.Debug("kill command", zap.Error(err))
	}
	sess.Stop()
	select {
	case <-sess.Done():
	case <-time.After(drainTimeout):
		log.Warn("relay did not finish after kill", zap.Duration("waited", drainTimeout))
	}
}

// signalExitCode maps a signal received by devbox to its exit code and
// whether it counts as an operator interrupt.
func signalExitCode(sig os.Signal) (int, bool) {
	if sig == os.Interrupt {
		return ExitInterrupted, true
	}
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s), false
	}
	return ExitInterrupted, false
}

func formatMinutes(d time.Duration) string {
	m := d.Minutes()
	if m == float64(int64(m)) {
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int64(m))
	}
	return fmt.Sprintf("%.1f minutes", m)
}
