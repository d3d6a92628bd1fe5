// Package text holds small string helpers shared by the outbound gateways.
package text

import "strings"

// Truncate cuts s to at most max runes and appends "..." when anything was
// dropped. A non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// Snippet flattens whitespace so a remote error body fits on one log line.
func Snippet(raw []byte, max int) string {
	return Truncate(strings.Join(strings.Fields(string(raw)), " "), max)
}
