package power

import (
	"errors"
	"sync"
	"time"

	"github.com/scienceol/devbox/internal/ui"
	"go.uber.org/zap"
)

const (
	// DefaultIdleTimeout is how long output may stay silent before the
	// inhibition is dropped.
	DefaultIdleTimeout = 15 * time.Minute

	// DefaultCheckInterval is how often the watchdog looks at the monitor.
	DefaultCheckInterval = 30 * time.Second

	// joinTimeout bounds how long Close waits for the watchdog to exit.
	joinTimeout = 2 * time.Second

	defaultReason = "AI coding session in progress"
)

// Option configures a SleepInhibitor.
type Option func(*SleepInhibitor)

// WithOnTimeout sets a callback run by the watchdog after it releases the
// inhibition on idle timeout. Panics in fn are recovered and logged.
func WithOnTimeout(fn func()) Option {
	return func(s *SleepInhibitor) { s.onTimeout = fn }
}

// WithCheckInterval sets the watchdog polling interval.
func WithCheckInterval(d time.Duration) Option {
	return func(s *SleepInhibitor) { s.checkInterval = d }
}

// WithBackend overrides the platform backend.
func WithBackend(b Backend) Option {
	return func(s *SleepInhibitor) { s.backend = b }
}

// WithLogger sets the debug logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *SleepInhibitor) { s.logger = l }
}

// WithPrinter sets where user-facing warnings go.
func WithPrinter(p *ui.Printer) Option {
	return func(s *SleepInhibitor) { s.printer = p }
}

// WithReason sets the reason passed to the backend.
func WithReason(reason string) Option {
	return func(s *SleepInhibitor) { s.reason = reason }
}

// SleepInhibitor holds a platform sleep inhibition for the lifetime of a
// scope (Start ... Close) and drops it early once its Monitor reports the
// idle timeout. Failing to acquire the inhibition is never fatal: the
// inhibitor then runs inactive and every other method still works. The
// watchdog only runs while the inhibition is held, so an inactive inhibitor
// never calls the WithOnTimeout callback.
type SleepInhibitor struct {
	timeout       time.Duration
	checkInterval time.Duration
	onTimeout     func()
	reason        string
	backend       Backend
	monitor       *Monitor
	logger        *zap.Logger
	printer       *ui.Printer

	mu       sync.Mutex
	started  bool
	active   bool
	released bool
	done     chan struct{} // closed when the watchdog exits; nil if it never ran

	stop     chan struct{}
	stopOnce sync.Once
}

// NewSleepInhibitor returns an inhibitor that has not acquired anything yet.
func NewSleepInhibitor(timeout time.Duration, opts ...Option) *SleepInhibitor {
	s := &SleepInhibitor{
		timeout:       timeout,
		checkInterval: DefaultCheckInterval,
		reason:        defaultReason,
		logger:        zap.NewNop(),
		printer:       ui.Discard(),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend == nil {
		s.backend = New()
	}
	if s.checkInterval <= 0 {
		s.checkInterval = DefaultCheckInterval
	}
	s.monitor = NewMonitor(timeout)
	return s
}

// Inhibit runs fn inside an inhibition scope. The inhibition is released
// and the watchdog stopped before Inhibit returns, including when fn panics.
func Inhibit(timeout time.Duration, fn func(*SleepInhibitor) error, opts ...Option) error {
	s := NewSleepInhibitor(timeout, opts...)
	s.Start()
	defer s.Close()
	return fn(s)
}

// Start acquires the inhibition and starts the watchdog. Calling it again,
// or after Release, does nothing.
func (s *SleepInhibitor) Start() {
	s.mu.Lock()
	if s.started || s.released {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.monitor.Pulse()

	if err := s.backend.Acquire(s.reason); err != nil {
		if errors.Is(err, ErrDisabled) {
			s.logger.Debug("sleep inhibition disabled")
			return
		}
		s.printer.Warn("sleep inhibition unavailable: %v", err)
		s.logger.Debug("acquire failed", zap.String("backend", s.backend.Name()), zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.released {
		// Released while acquiring.
		s.mu.Unlock()
		s.backend.Release()
		return
	}
	s.active = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Debug("sleep inhibition acquired",
		zap.String("backend", s.backend.Name()),
		zap.Duration("idle_timeout", s.timeout),
		zap.Duration("check_interval", s.checkInterval),
	)
	go s.watch(done)
}

// Close ends the scope: it stops the watchdog, waits for it (bounded) and
// releases the inhibition if still held.
func (s *SleepInhibitor) Close() error {
	s.signalStop()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(joinTimeout):
			s.logger.Warn("watchdog did not stop in time", zap.Duration("waited", joinTimeout))
		}
	}

	s.release()
	return nil
}

// Release drops the inhibition now. Idempotent; Close after Release only
// joins the watchdog.
func (s *SleepInhibitor) Release() {
	s.release()
}

// Pulse records output activity.
func (s *SleepInhibitor) Pulse() {
	s.monitor.Pulse()
}

// Active reports whether the inhibition was acquired and is still held.
func (s *SleepInhibitor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && !s.released
}

// Timeout returns the idle timeout.
func (s *SleepInhibitor) Timeout() time.Duration {
	return s.timeout
}

// Monitor returns the heartbeat monitor fed by Pulse.
func (s *SleepInhibitor) Monitor() *Monitor {
	return s.monitor
}

// release performs the single released transition and reports whether this
// call made it.
func (s *SleepInhibitor) release() bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return false
	}
	s.released = true
	held := s.active
	s.active = false
	s.mu.Unlock()

	s.signalStop()
	if held {
		s.backend.Release()
		s.logger.Debug("sleep inhibition released", zap.String("backend", s.backend.Name()))
	}
	return true
}

func (s *SleepInhibitor) signalStop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *SleepInhibitor) watch(done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		// A tick and a stop can be ready together; the stop wins.
		select {
		case <-s.stop:
			return
		default:
		}

		if !s.monitor.TimedOut() {
			continue
		}
		s.logger.Debug("idle timeout reached", zap.Duration("idle", s.monitor.SinceLastPulse()))
		if s.release() {
			s.fireTimeout()
		}
		return
	}
}

func (s *SleepInhibitor) fireTimeout() {
	if s.onTimeout == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("idle-timeout callback panicked", zap.Any("panic", r))
			s.printer.Warn("idle-timeout callback failed: %v", r)
		}
	}()
	s.onTimeout()
}
