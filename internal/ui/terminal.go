// Package ui renders rows, histories and reports for the CLI.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette
var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "63", Dark: "86"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "166", Dark: "214"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "28", Dark: "78"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "245", Dark: "240"}
)

// IsTerminal reports whether stdout is a TTY; plain output is used
// otherwise.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Width returns the terminal width, or 80 when it cannot be determined.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
