package ui

import (
	"bufio"
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinterLevels(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Info("starting %s", "claude")
	p.Success("done")
	p.Warn("sleep inhibition unavailable")
	p.Error("boom")
	p.KeyValue("Relay", "pty")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "devbox ● starting claude", lines[0])
	assert.Equal(t, "devbox ✔ done", lines[1])
	assert.Equal(t, "devbox ▲ sleep inhibition unavailable", lines[2])
	assert.Equal(t, "devbox ✖ boom", lines[3])
	assert.Contains(t, lines[4], "Relay")
	assert.Contains(t, lines[4], "pty")
}

func TestPrinterKeepsOneLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Warn("first\nsecond\n")

	assert.Equal(t, "devbox ▲ first second\n", buf.String())
}

func TestGuardSerializesWithDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	out := p.Guard(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = out.Write([]byte("chunk-chunk-chunk\n"))
		}()
		go func() {
			defer wg.Done()
			p.Info("note")
		}()
	}
	wg.Wait()

	sc := bufio.NewScanner(&buf)
	n := 0
	for sc.Scan() {
		line := sc.Text()
		assert.Contains(t, []string{"chunk-chunk-chunk", "devbox ● note"}, line)
		n++
	}
	assert.Equal(t, 40, n)
}

func TestGuardFlush(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	out := NewPrinter(&bytes.Buffer{}).Guard(bw)

	_, err := out.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	require.NoError(t, out.(interface{ Flush() error }).Flush())
	assert.Equal(t, "hello", buf.String())
}
