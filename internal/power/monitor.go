package power

import (
	"sync"
	"time"
)

// Monitor records when output was last seen and answers whether the idle
// timeout has passed since then. Safe for concurrent use.
type Monitor struct {
	timeout time.Duration
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewMonitor returns a Monitor whose last activity is the moment of
// construction. A timeout <= 0 reports timed out after any elapsed time.
func NewMonitor(timeout time.Duration) *Monitor {
	return newMonitorWithClock(timeout, time.Now)
}

func newMonitorWithClock(timeout time.Duration, now func() time.Time) *Monitor {
	return &Monitor{
		timeout: timeout,
		now:     now,
		last:    now(),
	}
}

// Pulse records activity now.
func (m *Monitor) Pulse() {
	m.mu.Lock()
	m.last = m.now()
	m.mu.Unlock()
}

// TimedOut reports whether more than the timeout has elapsed since the last pulse.
func (m *Monitor) TimedOut() bool {
	return m.SinceLastPulse() > m.timeout
}

// SinceLastPulse returns the time elapsed since the last pulse.
func (m *Monitor) SinceLastPulse() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.last)
}

// Timeout returns the configured idle timeout.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}
