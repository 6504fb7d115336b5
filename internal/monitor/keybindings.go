package monitor

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// keyMap holds every binding the dashboard understands. It satisfies
// help.KeyMap so the footer renders straight from it.
type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	First      key.Binding
	Last       key.Binding
	Refresh    key.Binding
	RefreshAll key.Binding
	Monitor    key.Binding
	Reconnect  key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		First: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("g/home", "first"),
		),
		Last: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("G/end", "last"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		RefreshAll: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "refresh all"),
		),
		Monitor: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "monitor on/off"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "reconnect"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp is the one-line footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.RefreshAll, k.Monitor, k.Reconnect, k.Help, k.Quit}
}

// FullHelp is shown after pressing ?.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.First, k.Last},
		{k.Refresh, k.RefreshAll, k.Monitor},
		{k.Reconnect, k.Help, k.Quit},
	}
}

// HandleKeyMsg processes keyboard input and returns updated model state and command.
// Returns true if the key was handled, false otherwise.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return true, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return true, nil

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return true, nil

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.records)-1 {
			m.selected++
		}
		return true, nil

	case key.Matches(msg, m.keys.First):
		m.selected = 0
		return true, nil

	case key.Matches(msg, m.keys.Last):
		if len(m.records) > 0 {
			m.selected = len(m.records) - 1
		}
		return true, nil

	case key.Matches(msg, m.keys.Refresh):
		return true, m.refreshSelected()

	case key.Matches(msg, m.keys.RefreshAll):
		return true, m.refreshAll()

	case key.Matches(msg, m.keys.Monitor):
		return true, m.toggleSelected()

	case key.Matches(msg, m.keys.Reconnect):
		m.src.Reconnect()
		m.setFlash("reconnecting...", flashInfo)
		return true, nil
	}

	return false, nil
}
