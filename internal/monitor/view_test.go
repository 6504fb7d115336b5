package monitor

import (
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/instsync/internal/conn"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/stretchr/testify/assert"
)

func TestView_Table(t *testing.T) {
	f := newFakeConsumer(
		rec("1", "orders-db", instance.StatusRunning, true),
		rec("2", "cache-1", instance.StatusError, false),
	)
	f.info.LastUpdate = testNow.Add(-3 * time.Second)
	m := newTestModel(t, f)

	out := m.View()
	assert.Contains(t, out, "instsync")
	assert.Contains(t, out, "live")
	assert.Contains(t, out, "2 instances | 1 running | 1 error")
	assert.Contains(t, out, "3 seconds ago")
	assert.Contains(t, out, "orders-db")
	assert.Contains(t, out, "10.0.0.1:5432")
	assert.Contains(t, out, "postgres")
	assert.Contains(t, out, "48%")
	assert.Contains(t, out, "4 seconds ago")
	assert.Contains(t, out, SelectedMarker+" ")
}

func TestView_EmptyStates(t *testing.T) {
	f := newFakeConsumer()
	m := newTestModel(t, f)
	assert.Contains(t, m.View(), "Waiting for instance data")
	assert.Contains(t, m.View(), "updated never")

	f.info.LastUpdate = testNow
	m = newTestModel(t, f)
	assert.Contains(t, m.View(), "No instances registered")
}

func TestView_Badge(t *testing.T) {
	tests := []struct {
		name string
		info conn.Info
		want string
	}{
		{name: "live", info: conn.Info{State: conn.Connected}, want: "● live"},
		{name: "connecting", info: conn.Info{State: conn.Connecting}, want: "◐ connecting"},
		{name: "reconnecting", info: conn.Info{State: conn.Reconnecting, Attempt: 3, MaxAttempts: 5}, want: "◌ reconnecting 3/5"},
		{name: "gave up", info: conn.Info{State: conn.Disconnected, GaveUp: true}, want: "c to retry"},
		{name: "disconnected", info: conn.Info{State: conn.Disconnected}, want: "✗ offline, polling"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Model{conn: provider.ConnectionInfo{Info: tt.info}}
			assert.Contains(t, m.renderBadge(), tt.want)
		})
	}
}

func TestView_NameFallsBackToID(t *testing.T) {
	r := rec("42", "", instance.StatusRunning, true)
	assert.Equal(t, "42", displayName(r))
}

func TestView_NeverChecked(t *testing.T) {
	r := rec("1", "a", instance.StatusRunning, true)
	r.LastCheckTime = nil
	m := newTestModel(t, newFakeConsumer(r))
	assert.Contains(t, m.renderRow(r, false), "never")
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5))
	assert.Equal(t, 6, lipgloss.Width(pad("a-very-long-name", 6)))
	assert.Equal(t, "abcd… ", pad("abcdefgh", 6))
}

func TestUsageBar(t *testing.T) {
	tests := []struct {
		percent int
		filled  int
	}{
		{percent: 0, filled: 0},
		{percent: 50, filled: 3},
		{percent: 100, filled: 6},
		{percent: 150, filled: 6},
		{percent: -5, filled: 0},
	}
	for _, tt := range tests {
		bar := UsageBar(6, tt.percent)
		assert.Equal(t, 6, lipgloss.Width(bar))
		assert.Equal(t, tt.filled, countRune(bar, '▰'), "percent %d", tt.percent)
	}
}

func TestUsageColor(t *testing.T) {
	assert.Equal(t, ColorHealthy, UsageColor(10))
	assert.Equal(t, ColorWarning, UsageColor(WarningThreshold))
	assert.Equal(t, ColorCritical, UsageColor(95))
}

func countRune(s string, r rune) int {
	n := 0
	for _, c := range s {
		if c == r {
			n++
		}
	}
	return n
}
