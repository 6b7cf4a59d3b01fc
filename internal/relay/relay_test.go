package relay

import (
	"bytes"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is both the output writer and the pulser, so tests can check
// that every write was paired with a pulse.
type recorder struct {
	mu     sync.Mutex
	writes [][]byte
	pulses atomic.Int32
}

func (r *recorder) Pulse() { r.pulses.Add(1) }

func (r *recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (r *recorder) output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(bytes.Join(r.writes, nil))
}

func (r *recorder) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writes)
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func startOrSkip(t *testing.T, r Relay, cmd *exec.Cmd, rec *recorder) *Session {
	t.Helper()
	s, err := r.Start(cmd, rec, rec)
	if errors.Is(err, ErrPTYUnavailable) {
		t.Skipf("%s relay unavailable: %v", r.Name(), err)
	}
	require.NoError(t, err)
	return s
}

func lines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{" PTY ", ModePTY, false},
		{"pipe", ModePipe, false},
		{"tmux", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseMode(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelect(t *testing.T) {
	assert.Equal(t, "pipe", Select(ModePipe).Name())
	assert.IsType(t, PTY{}, Select(ModePTY))

	if ptyByDefault {
		assert.IsType(t, PTY{}, Select(ModeAuto))
	} else {
		assert.IsType(t, Pipe{}, Select(ModeAuto))
	}
}

func TestRelayPreservesOrder(t *testing.T) {
	requireShell(t)

	for _, r := range []Relay{Pipe{}, PTY{}} {
		t.Run(r.Name(), func(t *testing.T) {
			rec := &recorder{}
			cmd := exec.Command("/bin/sh", "-c", "echo A; sleep 0.1; echo B; sleep 0.1; echo C")

			s := startOrSkip(t, r, cmd, rec)
			code, err := s.Wait()
			require.NoError(t, err)
			assert.Equal(t, 0, code)

			assert.Equal(t, []string{"A", "B", "C"}, lines(rec.output()))
			assert.Equal(t, 3, rec.writeCount())
			assert.Equal(t, int32(rec.writeCount()), rec.pulses.Load())
		})
	}
}

func TestRelayMergesStderr(t *testing.T) {
	requireShell(t)

	for _, r := range []Relay{Pipe{}, PTY{}} {
		t.Run(r.Name(), func(t *testing.T) {
			rec := &recorder{}
			cmd := exec.Command("/bin/sh", "-c", "echo out; sleep 0.05; echo err 1>&2")

			s := startOrSkip(t, r, cmd, rec)
			_, err := s.Wait()
			require.NoError(t, err)

			assert.Equal(t, []string{"out", "err"}, lines(rec.output()))
		})
	}
}

func TestRelayPulsesWithoutNewline(t *testing.T) {
	requireShell(t)

	rec := &recorder{}
	s := startOrSkip(t, Pipe{}, exec.Command("/bin/sh", "-c", "printf 'progress 50%%'; sleep 0.1; printf ' 100%%'"), rec)
	_, err := s.Wait()
	require.NoError(t, err)

	assert.Equal(t, "progress 50% 100%", rec.output())
	assert.GreaterOrEqual(t, rec.pulses.Load(), int32(2))
}

func TestRelayExitCodes(t *testing.T) {
	requireShell(t)

	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"success", "true", 0},
		{"failure", "false", 1},
		{"explicit", "exit 42", 42},
		{"signal", "kill -TERM $$", 128 + 15},
	}
	for _, r := range []Relay{Pipe{}, PTY{}} {
		for _, tc := range tests {
			t.Run(r.Name()+"/"+tc.name, func(t *testing.T) {
				rec := &recorder{}
				s := startOrSkip(t, r, exec.Command("/bin/sh", "-c", tc.script), rec)
				code, err := s.Wait()
				require.NoError(t, err)
				assert.Equal(t, tc.want, code)
			})
		}
	}
}

func TestRelayStartFailure(t *testing.T) {
	requireShell(t)

	for _, r := range []Relay{Pipe{}, PTY{}} {
		t.Run(r.Name(), func(t *testing.T) {
			rec := &recorder{}
			_, err := r.Start(exec.Command("devbox-definitely-not-a-command"), rec, rec)
			if errors.Is(err, ErrPTYUnavailable) {
				t.Skip("pty unavailable")
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, exec.ErrNotFound)
			assert.Zero(t, rec.pulses.Load())
		})
	}
}

func TestPTYStopIsPrompt(t *testing.T) {
	requireShell(t)

	rec := &recorder{}
	s := startOrSkip(t, PTY{}, exec.Command("/bin/sh", "-c", "sleep 30"), rec)

	s.Stop()
	s.Stop()
	require.NoError(t, s.Process().Kill())

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not finish after stop and kill")
	}
	code, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, 128+9, code)
}

func TestEmitDropsAfterWriteError(t *testing.T) {
	var pulses int
	p := PulseFunc(func() { pulses++ })

	out := emit(failingWriter{}, p, []byte("a"))
	out = emit(out, p, []byte("b"))

	assert.Equal(t, 2, pulses)
	n, err := out.Write([]byte("c"))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("stdout closed") }
