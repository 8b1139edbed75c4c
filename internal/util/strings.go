// Package util provides shared utility functions used across the codebase.
package util

import (
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// TruncateBytes shortens s to at most maxBytes bytes, ending in "..." when
// anything was cut. The cut never splits a UTF-8 sequence, so the result
// may be a few bytes shorter than maxBytes.
func TruncateBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	if maxBytes <= len(ellipsis) {
		return ellipsis[:max(maxBytes, 0)]
	}
	cut := maxBytes - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

// TruncateMiddle shortens s to maxWidth terminal columns by replacing its
// middle with "...". Widths are measured the way the terminal renders them,
// so wide characters count double. When the kept columns do not split evenly
// the tail gets the extra one.
func TruncateMiddle(s string, maxWidth int) string {
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	width := lipgloss.Width(s)
	if width <= maxWidth {
		return s
	}
	keep := maxWidth - len(ellipsis)
	head := keep / 2
	tail := keep - head
	return ansi.Truncate(s, head, "") + ellipsis + lastColumns(s, tail)
}

// lastColumns returns the longest suffix of s at most n columns wide.
func lastColumns(s string, n int) string {
	runes := []rune(s)
	i, width := len(runes), 0
	for i > 0 {
		w := lipgloss.Width(string(runes[i-1]))
		if width+w > n {
			break
		}
		width += w
		i--
	}
	return string(runes[i:])
}
