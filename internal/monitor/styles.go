package monitor

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Dashboard color palette
const (
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")

	ColorHealthy  = lipgloss.Color("#39FF14")
	ColorWarning  = lipgloss.Color("#FFAA00")
	ColorCritical = lipgloss.Color("#FF0055")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent = lipgloss.Color("#FF2E97")
)

// Usage thresholds for the CPU and memory bars.
const (
	WarningThreshold  = 70
	CriticalThreshold = 90
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Background(ColorSurfaceBg).
			Bold(true).
			Padding(0, 1)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	ColumnHeaderStyle = lipgloss.NewStyle().
				Foreground(ColorTextMuted).
				Bold(true)

	RowStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary)

	RowSelectedStyle = lipgloss.NewStyle().
				Foreground(ColorAccent).
				Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	StatusRunningStyle = lipgloss.NewStyle().
				Foreground(ColorHealthy)

	StatusErrorStyle = lipgloss.NewStyle().
				Foreground(ColorCritical)

	FlashStyle = lipgloss.NewStyle().
			Foreground(ColorHealthy).
			Padding(0, 1)

	FlashErrorStyle = lipgloss.NewStyle().
			Foreground(ColorCritical).
			Padding(0, 1)
)

// Connection badge glyphs.
const (
	BadgeLive         = "●"
	BadgeConnecting   = "◐"
	BadgeReconnecting = "◌"
	BadgeOffline      = "✗"
	SelectedMarker    = "▸"
)

// UsageColor returns the threshold color for a usage percentage.
func UsageColor(percent int) lipgloss.Color {
	switch {
	case percent >= CriticalThreshold:
		return ColorCritical
	case percent >= WarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// UsageBar renders a bracketless bar colored by threshold.
func UsageBar(width, percent int) string {
	if width < 1 {
		width = 1
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := percent * width / 100
	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", width-filled)
	return lipgloss.NewStyle().Foreground(UsageColor(percent)).Render(bar)
}
