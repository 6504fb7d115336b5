package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/provider"
)

// DefaultCommandTimeout caps how long the dashboard waits on one command.
// The provider's own ack timeout normally fires first.
const DefaultCommandTimeout = time.Minute

// clockInterval redraws relative times ("3s ago") even when no data arrives.
const clockInterval = time.Second

// Model is the Bubble Tea model for the instance dashboard.
type Model struct {
	src    provider.Consumer
	bridge *Bridge
	keys   keyMap
	help   help.Model

	records  []instance.Record
	stats    instance.Stats
	conn     provider.ConnectionInfo
	selected int

	flash     string
	flashKind flashKind
	pending   int

	width    int
	height   int
	quitting bool

	now            func() time.Time
	commandTimeout time.Duration
}

// clockMsg signals a periodic redraw.
type clockMsg time.Time

// resultMsg carries the outcome of a command issued from the dashboard.
type resultMsg struct {
	label   string
	err     error
	message string
}

// flashKind picks the glyph and color of the flash line.
type flashKind int

const (
	flashInfo flashKind = iota
	flashOK
	flashError
)

// Option configures a Model.
type Option func(*Model)

// WithNow overrides the time source used for relative timestamps.
func WithNow(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(m *Model) { m.commandTimeout = d }
}

// NewModel creates a dashboard over src. The bridge must be subscribed to
// the same src.
func NewModel(src provider.Consumer, bridge *Bridge, opts ...Option) Model {
	m := Model{
		src:            src,
		bridge:         bridge,
		keys:           defaultKeyMap(),
		help:           help.New(),
		now:            time.Now,
		commandTimeout: DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.sync()
	return m
}

// Init starts listening for provider updates and the redraw clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.Wait(), m.clockCmd())
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case updateMsg:
		m.sync()
		return m, m.bridge.Wait()

	case clockMsg:
		m.conn = m.src.ConnectionInfo()
		return m, m.clockCmd()

	case resultMsg:
		m.pending--
		if m.pending < 0 {
			m.pending = 0
		}
		m.showResult(msg)
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// sync re-reads the provider snapshot, keeping the selection on the same
// instance when it still exists.
func (m *Model) sync() {
	selectedID := m.SelectedID()

	m.records = m.src.Instances()
	m.stats = m.src.StatusStats()
	m.conn = m.src.ConnectionInfo()

	if selectedID != "" {
		for i, r := range m.records {
			if r.ID == selectedID {
				m.selected = i
				return
			}
		}
	}
	if m.selected >= len(m.records) {
		m.selected = len(m.records) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// SelectedID returns the id of the highlighted instance, or "" if none.
func (m Model) SelectedID() instance.ID {
	if m.selected >= 0 && m.selected < len(m.records) {
		return m.records[m.selected].ID
	}
	return ""
}

// Pending is the number of commands still awaiting a result.
func (m Model) Pending() int {
	return m.pending
}

func (m Model) selectedRecord() (instance.Record, bool) {
	if m.selected >= 0 && m.selected < len(m.records) {
		return m.records[m.selected], true
	}
	return instance.Record{}, false
}

func (m *Model) refreshSelected() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		return nil
	}
	label := "refreshed " + displayName(rec)
	m.setFlash("refreshing "+displayName(rec)+"...", flashInfo)
	return m.await(label, m.src.RefreshInstance(rec.ID))
}

func (m *Model) refreshAll() tea.Cmd {
	m.setFlash("refreshing all instances...", flashInfo)
	return m.await("refreshed all instances", m.src.RefreshAll())
}

func (m *Model) toggleSelected() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		return nil
	}
	enable := !rec.IsMonitoring
	verb := "disabled"
	if enable {
		verb = "enabled"
	}
	label := fmt.Sprintf("monitoring %s for %s", verb, displayName(rec))
	m.setFlash("updating monitoring for "+displayName(rec)+"...", flashInfo)
	return m.await(label, m.src.ToggleMonitoring(rec.ID, enable))
}

// await waits for r off the update loop.
func (m *Model) await(label string, r *provider.Result) tea.Cmd {
	m.pending++
	timeout := m.commandTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := r.Wait(ctx)
		return resultMsg{label: label, err: err, message: r.Message()}
	}
}

func (m *Model) showResult(msg resultMsg) {
	if msg.err == nil {
		text := msg.label
		if msg.message != "" {
			text += ": " + msg.message
		}
		m.setFlash(text, flashOK)
		return
	}

	reason := msg.err.Error()
	switch {
	case errors.Is(msg.err, provider.ErrNotConnected):
		reason = "needs the live connection (press c to reconnect)"
	case errors.Is(msg.err, provider.ErrAckTimeout):
		reason = "server did not answer in time"
	case errors.Is(msg.err, context.DeadlineExceeded):
		reason = "gave up waiting"
	}
	m.setFlash(msg.label+" failed: "+reason, flashError)
}

func (m *Model) setFlash(text string, kind flashKind) {
	m.flash = text
	m.flashKind = kind
}

func (m Model) clockCmd() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

// displayName prefers the instance name and falls back to the id.
func displayName(r instance.Record) string {
	if r.InstanceName != "" {
		return r.InstanceName
	}
	return string(r.ID)
}
