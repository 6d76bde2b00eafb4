package sink

import (
	"fmt"
	"io"

	"github.com/wakamesoba98/dosscan"
)

// ANSI color codes, matching the original detector's ColorPrint palette.
const (
	colorReset   = "\x1b[0m"
	colorMagenta = "\x1b[35m"
	colorYellow  = "\x1b[33m"
	colorCyan    = "\x1b[36m"
	colorBlue    = "\x1b[34m"
	colorGreen   = "\x1b[32m"
	colorRed     = "\x1b[31m"
)

// Terminal is a dosscan.Sink that writes colorized, sanitized
// diagnostics to w, modeled on the original detector's console output.
type Terminal struct {
	w     io.Writer
	color bool
}

// NewTerminal builds a Terminal writing to w. color disables ANSI
// codes when false (e.g. output is redirected to a file).
func NewTerminal(w io.Writer, color bool) *Terminal {
	return &Terminal{w: w, color: color}
}

func (t *Terminal) paint(code, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	if !t.color {
		fmt.Fprintln(t.w, msg)
		return
	}

	fmt.Fprintln(t.w, code+msg+colorReset)
}

func (t *Terminal) Info(message string) {
	t.paint(colorMagenta, "* %s", Sanitize(message))
}

func (t *Terminal) Warn(message string) {
	t.paint(colorYellow, "! %s", Sanitize(message))
}

func (t *Terminal) Descriptor(name string, serialVersionUID string, numFields int) {
	t.paint(colorCyan, "class %s (suid %s, %d fields)", Sanitize(name), serialVersionUID, numFields)
}

func (t *Terminal) Graph(handle int, refCount int) {
	t.paint(colorBlue, "reference graph from handle %d: %d edges traversed", handle, refCount)
}

func (t *Terminal) Verdict(v dosscan.Verdict) {
	if v.Safe {
		t.paint(colorGreen, "verdict: %s", v.String())
		return
	}

	t.paint(colorRed, "verdict: %s", v.String())
}
