// Package cliutil provides consistent CLI output styling for the
// docseek command surface: an icon-prefixed status Writer and a small
// lipgloss palette that degrades to plain text when output is not a
// color-capable terminal.
package cliutil

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// IsTTY reports whether w is a terminal (native or Cygwin).
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NoColor reports whether color output should be suppressed, honoring
// the NO_COLOR convention.
func NoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// Styles holds the small set of lipgloss styles docseek's CLI uses.
// Colors fall back to no-op styles when output isn't a color-capable
// terminal.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
}

const (
	colorAccent = "154" // lime green
	colorRed    = "196"
	colorYellow = "220"
	colorGray   = "245"
)

// NewStyles builds Styles appropriate for writing to w: colored if w is
// a TTY and NO_COLOR isn't set, plain otherwise.
func NewStyles(w io.Writer) Styles {
	if !IsTTY(w) || NoColor() {
		return Styles{
			Header:  lipgloss.NewStyle(),
			Success: lipgloss.NewStyle(),
			Warning: lipgloss.NewStyle(),
			Error:   lipgloss.NewStyle(),
			Dim:     lipgloss.NewStyle(),
		}
	}
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

// Writer prints icon-prefixed status lines.
type Writer struct {
	out    io.Writer
	styles Styles
}

// New constructs a Writer over out, auto-detecting color support.
func New(out io.Writer) *Writer {
	return &Writer{out: out, styles: NewStyles(out)}
}

func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	fmt.Fprintf(w.out, "  %s\n", msg)
}

func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) { w.Status(w.styles.Success.Render("✓"), msg) }
func (w *Writer) Warning(msg string) { w.Status(w.styles.Warning.Render("!"), msg) }
func (w *Writer) Error(msg string)   { w.Status(w.styles.Error.Render("✗"), msg) }

func (w *Writer) Header(msg string) {
	fmt.Fprintln(w.out, w.styles.Header.Render(msg))
}

func (w *Writer) Newline() { fmt.Fprintln(w.out) }
