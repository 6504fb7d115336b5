package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SpinnerState represents the current state of a spinner.
type SpinnerState int

const (
	SpinnerPending SpinnerState = iota
	SpinnerInProgress
	SpinnerSuccess
	SpinnerFailed
)

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

const frameInterval = 100 * time.Millisecond

// Spinner redraws a single status line until it is stopped.
type Spinner struct {
	mu           sync.Mutex
	label        string
	state        SpinnerState
	frame        int
	startTime    time.Time
	stopChan     chan struct{}
	doneChan     chan struct{}
	out          io.Writer
	running      bool
	lastRendered string
}

// NewSpinner creates a spinner that draws to w.
func NewSpinner(label string, w io.Writer) *Spinner {
	return &Spinner{
		label: label,
		state: SpinnerPending,
		out:   w,
	}
}

// Start begins the animation. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.state = SpinnerInProgress
	s.startTime = time.Now()
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	s.mu.Unlock()

	s.render()

	go s.animate()
}

// Stop halts the animation and erases the line without changing state.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	<-s.doneChan

	s.mu.Lock()
	s.clearLine()
	s.mu.Unlock()
}

// Success stops the spinner and leaves a success line behind.
func (s *Spinner) Success() {
	s.finish(SpinnerSuccess)
}

// Fail stops the spinner and leaves a failure line behind.
func (s *Spinner) Fail() {
	s.finish(SpinnerFailed)
}

func (s *Spinner) finish(state SpinnerState) {
	s.Stop()
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.renderFinal()
}

// State returns the current spinner state.
func (s *Spinner) State() SpinnerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Label returns the spinner's label.
func (s *Spinner) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

// SetLabel updates the label shown on the next frame.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	defer close(s.doneChan)

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	style := lipgloss.NewStyle().Foreground(ColorInfo)
	line := fmt.Sprintf("\r%s %s...", style.Render(spinnerFrames[s.frame]), s.label)

	s.clearLine()
	fmt.Fprint(s.out, line)
	s.lastRendered = line
}

// clearLine must be called with mu held.
func (s *Spinner) clearLine() {
	if s.lastRendered == "" {
		return
	}
	fmt.Fprint(s.out, "\r"+strings.Repeat(" ", len([]rune(s.lastRendered)))+"\r")
	s.lastRendered = ""
}

func (s *Spinner) renderFinal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbol, color := SymbolPending, ColorMuted
	switch s.state {
	case SpinnerSuccess:
		symbol, color = SymbolSuccess, ColorSuccess
	case SpinnerFailed:
		symbol, color = SymbolFail, ColorError
	}

	timing := lipgloss.NewStyle().Foreground(ColorMuted).Render(formatDuration(time.Since(s.startTime)))
	fmt.Fprintf(s.out, "%s %s %s\n", lipgloss.NewStyle().Foreground(color).Render(symbol), s.label, timing)
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
