// Package tui hosts a receive session in a Bubble Tea program. It renders
// status lines, the confirmation listing and transfer progress, and turns
// keys, signals and timers into session calls.
package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jamesainslie/ferry/pkg/ferry/protocol"
)

// Color palette for the TUI.
var (
	primaryColor = lipgloss.Color("#7D56F4")
	accentColor  = lipgloss.Color("#00D9FF")

	successColor = lipgloss.Color("#28A745")
	warningColor = lipgloss.Color("#FFC107")
	dangerColor  = lipgloss.Color("#DC3545")

	mutedColor  = lipgloss.Color("#666666")
	borderColor = lipgloss.Color("#333333")
)

// Text styles.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedTextStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorTextStyle = lipgloss.NewStyle().
			Foreground(dangerColor)

	successTextStyle = lipgloss.NewStyle().
				Foreground(successColor)

	dividerStyle = lipgloss.NewStyle().
			Foreground(borderColor)
)

// Confirmation listing styles.
var (
	// overwriteStyle marks a destination that already exists.
	overwriteStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)

	arrowStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	yesKeyStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	noKeyStyle = lipgloss.NewStyle().
			Foreground(dangerColor).
			Bold(true)
)

// Progress styles.
var (
	statsLabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	statsValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)
)

// badgeStyle returns the style of a file type badge.
func badgeStyle(t protocol.FileType) lipgloss.Style {
	switch t {
	case protocol.FileTypeDirectory:
		return lipgloss.NewStyle().Foreground(accentColor)
	case protocol.FileTypeSymlink:
		return lipgloss.NewStyle().Foreground(warningColor)
	case protocol.FileTypeLink:
		return lipgloss.NewStyle().Foreground(primaryColor)
	default:
		return lipgloss.NewStyle().Foreground(successColor)
	}
}

// renderDivider creates a horizontal divider line.
func renderDivider(width int) string {
	return dividerStyle.Render(repeatChar('─', width))
}

// repeatChar repeats a character n times.
func repeatChar(char rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = char
	}
	return string(result)
}

// truncatePath truncates a path to fit within maxLen, preserving the end.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return path[:maxLen]
	}
	return "..." + path[len(path)-(maxLen-3):]
}
