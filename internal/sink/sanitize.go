// Package sink provides terminal-facing diagnostic output for the
// scanner, built on top of dosscan.Sink.
package sink

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// sanitizer strips control and escape bytes from attacker-controlled
// strings (class names, field names) before they reach a terminal.
// Class/field names are read straight off the wire and are never
// trusted; a crafted name containing ANSI escapes could otherwise
// spoof terminal output.
var sanitizer = transform.Chain(
	norm.NFC,
	runes.Remove(runes.In(unicode.Cc)),
)

// Sanitize returns s with Unicode control characters (category Cc,
// which includes ESC and other terminal-hazardous bytes) removed.
func Sanitize(s string) string {
	out, _, err := transform.String(sanitizer, s)
	if err != nil {
		return ""
	}

	return out
}
