package monitor

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/instsync/internal/provider"
)

// updateMsg tells the model the provider's data changed.
type updateMsg struct{}

// Bridge turns provider updates into Bubble Tea messages. Bursts of updates
// collapse into one pending redraw, so the provider callback never blocks.
type Bridge struct {
	pending chan struct{}
	done    chan struct{}
	unsub   func()
	once    sync.Once
}

// NewBridge subscribes to src. Close it when the program exits.
func NewBridge(src provider.Consumer) *Bridge {
	b := &Bridge{
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.unsub = src.Subscribe(b.notify)
	return b
}

func (b *Bridge) notify(provider.Update) {
	select {
	case b.pending <- struct{}{}:
	default:
	}
}

// Wait returns a command that blocks until the next update. It yields nil
// once the bridge is closed.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.pending:
			return updateMsg{}
		case <-b.done:
			return nil
		}
	}
}

// Close unsubscribes and releases any waiting command.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.unsub()
		close(b.done)
	})
}
