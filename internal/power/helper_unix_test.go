//go:build darwin || linux

package power

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelperBackendHoldsUntilRelease(t *testing.T) {
	h := &helperBackend{
		name: "sleep",
		command: func(path, reason string) *exec.Cmd {
			return exec.Command(path, "60")
		},
	}

	require.NoError(t, h.Acquire("test"))
	require.NotNil(t, h.cmd)
	pid := h.cmd.Process.Pid
	assert.NotZero(t, pid)

	// A second acquire while held is a no-op.
	require.NoError(t, h.Acquire("test"))
	assert.Equal(t, pid, h.cmd.Process.Pid)

	h.Release()
	assert.Nil(t, h.cmd)
	h.Release()
}

func TestHelperBackendExitsImmediately(t *testing.T) {
	h := &helperBackend{
		name: "false",
		command: func(path, reason string) *exec.Cmd {
			return exec.Command(path)
		},
	}

	err := h.Acquire("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited immediately")
	assert.Nil(t, h.cmd)
}

func TestHelperBackendMissingBinary(t *testing.T) {
	h := &helperBackend{
		name: "devbox-no-such-inhibitor",
		command: func(path, reason string) *exec.Cmd {
			return exec.Command(path)
		},
	}

	err := h.Acquire("test")
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestNewBackendHasName(t *testing.T) {
	assert.NotEmpty(t, New().Name())
}
