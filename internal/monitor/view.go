package monitor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/instsync/internal/conn"
	"github.com/rileyhilliard/instsync/internal/instance"
)

// Column widths for the instance table.
const (
	colName    = 22
	colAddress = 22
	colType    = 10
	colStatus  = 9
	colMon     = 5
	colBar     = 6
	colUsage   = colBar + 5
)

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderTable())
	b.WriteString("\n\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// renderHeader renders the title, connection badge and summary stats.
func (m Model) renderHeader() string {
	updated := "never"
	if !m.conn.LastUpdate.IsZero() {
		updated = humanize.RelTime(m.conn.LastUpdate, m.now(), "ago", "from now")
	}

	stats := LabelStyle.Render(fmt.Sprintf(" | %d instances | %d running | %d error | updated %s",
		m.stats.Total, m.stats.Running, m.stats.Error, updated))

	return HeaderStyle.Render(TitleStyle.Render("instsync") + "  " + m.renderBadge() + stats)
}

// renderBadge summarises the push connection.
func (m Model) renderBadge() string {
	info := m.conn.Info
	switch {
	case info.State == conn.Connected:
		return StatusRunningStyle.Render(BadgeLive + " live")
	case info.State == conn.Connecting:
		return lipgloss.NewStyle().Foreground(ColorWarning).Render(BadgeConnecting + " connecting")
	case info.State == conn.Reconnecting:
		return lipgloss.NewStyle().Foreground(ColorWarning).
			Render(fmt.Sprintf("%s reconnecting %d/%d", BadgeReconnecting, info.Attempt, info.MaxAttempts))
	case info.GaveUp:
		return StatusErrorStyle.Render(BadgeOffline + " offline, polling (c to retry)")
	default:
		return StatusErrorStyle.Render(BadgeOffline + " offline, polling")
	}
}

// renderTable renders one row per instance in first-seen order.
func (m Model) renderTable() string {
	if len(m.records) == 0 {
		if m.conn.LastUpdate.IsZero() {
			return LabelStyle.Render("  Waiting for instance data...")
		}
		return LabelStyle.Render("  No instances registered")
	}

	lines := make([]string, 0, len(m.records)+1)
	lines = append(lines, ColumnHeaderStyle.Render("  "+
		pad("NAME", colName)+pad("ADDRESS", colAddress)+pad("TYPE", colType)+
		pad("STATUS", colStatus)+pad("MON", colMon)+pad("CPU", colUsage+1)+pad("MEM", colUsage+1)+"CHECKED"))

	for i, r := range m.records {
		lines = append(lines, m.renderRow(r, i == m.selected))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRow(r instance.Record, selected bool) string {
	marker := "  "
	nameStyle := RowStyle
	if selected {
		marker = SelectedMarker + " "
		nameStyle = RowSelectedStyle
	}

	statusStyle := StatusErrorStyle
	if r.Online() {
		statusStyle = StatusRunningStyle
	}

	mon := MutedStyle.Render(pad("off", colMon))
	if r.IsMonitoring {
		mon = RowStyle.Render(pad("on", colMon))
	}

	checked := MutedStyle.Render("never")
	if r.LastCheckTime != nil {
		checked = LabelStyle.Render(humanize.RelTime(*r.LastCheckTime, m.now(), "ago", "from now"))
	}

	return marker +
		nameStyle.Render(pad(displayName(r), colName)) +
		RowStyle.Render(pad(r.Address(), colAddress)) +
		LabelStyle.Render(pad(r.DBType, colType)) +
		statusStyle.Render(pad(string(r.Status.Normalize()), colStatus)) +
		mon +
		usage(r.CPUUsage) + " " +
		usage(r.MemoryUsage) + " " +
		checked
}

// renderFooter renders the flash line and key help.
func (m Model) renderFooter() string {
	var lines []string
	if m.flash != "" {
		style, mark := FlashStyle, "✓ "
		switch m.flashKind {
		case flashInfo:
			style, mark = LabelStyle.Padding(0, 1), "… "
		case flashError:
			style, mark = FlashErrorStyle, "✗ "
		}
		lines = append(lines, style.Render(mark+m.flash))
	}
	lines = append(lines, FooterStyle.Render(m.help.View(m.keys)))
	return strings.Join(lines, "\n")
}

func usage(percent int) string {
	label := strconv.Itoa(percent) + "%"
	return UsageBar(colBar, percent) + " " + pad(label, colUsage-colBar-1)
}

// pad truncates or right-pads s to width display cells.
func pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		r := []rune(s)
		if len(r) >= width && width > 1 {
			return string(r[:width-2]) + "… "
		}
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
