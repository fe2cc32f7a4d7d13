package tui

import (
	"strings"
	"testing"

	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
)

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		char     rune
		n        int
		expected string
	}{
		{'a', 0, ""},
		{'a', -1, ""},
		{'a', 1, "a"},
		{'─', 3, "───"},
	}

	for _, tt := range tests {
		result := repeatChar(tt.char, tt.n)
		if result != tt.expected {
			t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.char, tt.n, result, tt.expected)
		}
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		path     string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"/very/long/path/to/file.txt", 20, ".../path/to/file.txt"},
		{"abcd", 3, "abc"},
		{"abcdef", 4, "...f"},
	}

	for _, tt := range tests {
		result := truncatePath(tt.path, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.path, tt.maxLen, result, tt.expected)
		}
	}
}

func TestBadgeStyle(t *testing.T) {
	for _, ft := range []protocol.FileType{
		protocol.FileTypeRegular,
		protocol.FileTypeDirectory,
		protocol.FileTypeSymlink,
		protocol.FileTypeLink,
	} {
		rendered := badgeStyle(ft).Render(ft.ShortText())
		if !strings.Contains(rendered, strings.TrimSpace(ft.ShortText())) {
			t.Errorf("badge for %s = %q, missing text", ft, rendered)
		}
	}
}

func TestRenderDivider(t *testing.T) {
	if !strings.Contains(renderDivider(5), "─────") {
		t.Errorf("renderDivider(5) = %q", renderDivider(5))
	}
}
