package util

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateBytes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxBytes int
		expected string
	}{
		{
			name:     "short string unchanged",
			input:    "hello",
			maxBytes: 10,
			expected: "hello",
		},
		{
			name:     "exact length unchanged",
			input:    "hello",
			maxBytes: 5,
			expected: "hello",
		},
		{
			name:     "long string truncated",
			input:    "hello world",
			maxBytes: 8,
			expected: "hello...",
		},
		{
			name:     "limit equal to ellipsis",
			input:    "hello",
			maxBytes: 3,
			expected: "...",
		},
		{
			name:     "limit below ellipsis",
			input:    "hello",
			maxBytes: 2,
			expected: "..",
		},
		{
			name:     "zero limit",
			input:    "hello",
			maxBytes: 0,
			expected: "",
		},
		{
			name:     "negative limit",
			input:    "hello",
			maxBytes: -5,
			expected: "",
		},
		{
			name:     "empty string unchanged",
			input:    "",
			maxBytes: 10,
			expected: "",
		},
		{
			name:     "cut backs off to a rune start",
			input:    "日本語",
			maxBytes: 7,
			expected: "日...",
		},
		{
			name:     "cut on a rune boundary",
			input:    "日本語",
			maxBytes: 8,
			expected: "日...",
		},
		{
			name:     "mixed ascii and unicode",
			input:    "ab日本語",
			maxBytes: 9,
			expected: "ab日...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateBytes(tt.input, tt.maxBytes)
			if got != tt.expected {
				t.Errorf("TruncateBytes(%q, %d) = %q, want %q", tt.input, tt.maxBytes, got, tt.expected)
			}
			if tt.maxBytes >= 0 && len(got) > tt.maxBytes {
				t.Errorf("TruncateBytes(%q, %d) returned %d bytes", tt.input, tt.maxBytes, len(got))
			}
			if !utf8.ValidString(got) {
				t.Errorf("TruncateBytes(%q, %d) = %q is not valid UTF-8", tt.input, tt.maxBytes, got)
			}
		})
	}
}

func TestTruncateMiddle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		expected string
	}{
		{
			name:     "short path unchanged",
			input:    "/tmp/a.txt",
			maxWidth: 20,
			expected: "/tmp/a.txt",
		},
		{
			name:     "even split",
			input:    "/a/b/c/file.txt",
			maxWidth: 11,
			expected: "/a/b....txt",
		},
		{
			name:     "odd split favours the tail",
			input:    "/a/b/c/file.txt",
			maxWidth: 12,
			expected: "/a/b...e.txt",
		},
		{
			name:     "tiny limit returns ellipsis",
			input:    "/a/b/c/file.txt",
			maxWidth: 3,
			expected: "...",
		},
		{
			name:     "wide characters that fit are unchanged",
			input:    "/srv/日本語",
			maxWidth: 11,
			expected: "/srv/日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateMiddle(tt.input, tt.maxWidth)
			if got != tt.expected {
				t.Errorf("TruncateMiddle(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.expected)
			}
		})
	}
}

func TestTruncateMiddle_WideCharacters(t *testing.T) {
	input := "/srv/日本語テスト/データ.txt"
	for _, maxWidth := range []int{8, 9, 12, 20} {
		got := TruncateMiddle(input, maxWidth)
		if width := lipgloss.Width(got); width > maxWidth {
			t.Errorf("TruncateMiddle(%q, %d) = %q is %d columns wide", input, maxWidth, got, width)
		}
		if !strings.HasPrefix(got, "/") || !strings.HasSuffix(got, "txt") || !strings.Contains(got, "...") {
			t.Errorf("TruncateMiddle(%q, %d) = %q should keep both ends", input, maxWidth, got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("TruncateMiddle(%q, %d) = %q is not valid UTF-8", input, maxWidth, got)
		}
	}
}
