package ui

import "github.com/charmbracelet/lipgloss"

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolFail    = "✗"
	SymbolPending = "○"
)

// ANSI colors, so output follows the terminal's theme.
const (
	ColorSuccess lipgloss.Color = "2"
	ColorError   lipgloss.Color = "1"
	ColorWarning lipgloss.Color = "3"
	ColorInfo    lipgloss.Color = "6"
	ColorMuted   lipgloss.Color = "8"
)
