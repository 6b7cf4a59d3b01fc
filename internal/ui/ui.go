package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Prefix marks every diagnostic line so it can be told apart from relayed
// command output when both streams share a terminal.
const Prefix = "devbox"

// Printer writes terse single-line diagnostics to the error stream.
// Styling is dropped automatically when the writer is not a terminal.
type Printer struct {
	mu sync.Mutex
	w  io.Writer

	prefix lipgloss.Style
	info   lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	dim    lipgloss.Style
	value  lipgloss.Style
}

// NewPrinter returns a Printer that writes to w (normally os.Stderr).
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		prefix: r.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		info:   r.NewStyle().Foreground(lipgloss.Color("6")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("1")),
		dim:    r.NewStyle().Faint(true),
		value:  r.NewStyle().Foreground(lipgloss.Color("15")),
	}
}

// Discard returns a Printer that drops everything.
func Discard() *Printer {
	return NewPrinter(io.Discard)
}

// Info prints:  devbox ● message
func (p *Printer) Info(format string, a ...any) {
	p.line(p.info.Render("●"), format, a...)
}

// Success prints:  devbox ✔ message
func (p *Printer) Success(format string, a ...any) {
	p.line(p.ok.Render("✔"), format, a...)
}

// Warn prints:  devbox ▲ message
func (p *Printer) Warn(format string, a ...any) {
	p.line(p.warn.Render("▲"), format, a...)
}

// Error prints:  devbox ✖ message
func (p *Printer) Error(format string, a ...any) {
	p.line(p.fail.Render("✖"), format, a...)
}

// KeyValue prints a labeled line:  devbox ▸ label  value
func (p *Printer) KeyValue(label, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s %s %s\n",
		p.prefix.Render(Prefix), p.info.Render("▸"), p.dim.Render(fmt.Sprintf("%-11s", label)), p.value.Render(value))
}

// Guard returns a writer that shares the printer's lock, so a relayed
// chunk and a diagnostic line are never written at the same time.
func (p *Printer) Guard(w io.Writer) io.Writer {
	return &guardedWriter{p: p, w: w}
}

func (p *Printer) line(icon, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	// One diagnostic is one line.
	msg = strings.ReplaceAll(strings.TrimRight(msg, "\n"), "\n", " ")

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s %s\n", p.prefix.Render(Prefix), icon, msg)
}

type guardedWriter struct {
	p *Printer
	w io.Writer
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	return g.w.Write(b)
}

// Flush forwards to the wrapped writer when it buffers.
func (g *guardedWriter) Flush() error {
	f, ok := g.w.(interface{ Flush() error })
	if !ok {
		return nil
	}
	g.p.mu.Lock()
	defer g.p.mu.Unlock()
	return f.Flush()
}
