//go:build windows

package power

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/windows"
)

const (
	esSystemRequired = 0x00000001
	esContinuous     = 0x80000000
)

var procSetThreadExecutionState = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadExecutionState")

// windowsBackend holds ES_CONTINUOUS|ES_SYSTEM_REQUIRED on a locked OS
// thread. The execution state belongs to the thread that set it, so the
// same thread must clear it.
type windowsBackend struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newBackend() Backend {
	return &windowsBackend{}
}

func (w *windowsBackend) Name() string { return "SetThreadExecutionState" }

func (w *windowsBackend) Acquire(reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil {
		return nil
	}
	if err := procSetThreadExecutionState.Find(); err != nil {
		return fmt.Errorf("SetThreadExecutionState unavailable: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	acquired := make(chan error, 1)

	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		r1, _, callErr := procSetThreadExecutionState.Call(uintptr(esContinuous | esSystemRequired))
		if r1 == 0 {
			acquired <- fmt.Errorf("SetThreadExecutionState: %w", callErr)
			return
		}
		acquired <- nil

		<-stop
		procSetThreadExecutionState.Call(uintptr(esContinuous))
	}()

	if err := <-acquired; err != nil {
		return err
	}
	w.stop = stop
	w.done = done
	return nil
}

func (w *windowsBackend) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
	w.stop = nil
	w.done = nil
}
