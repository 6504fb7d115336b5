package ui

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// syncBuffer is a bytes.Buffer safe for the animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNewSpinner(t *testing.T) {
	s := NewSpinner("Connecting", &syncBuffer{})
	assert.Equal(t, "Connecting", s.Label())
	assert.Equal(t, SpinnerPending, s.State())
}

func TestSpinnerStartStop(t *testing.T) {
	out := &syncBuffer{}
	s := NewSpinner("Connecting", out)

	s.Start()
	assert.Equal(t, SpinnerInProgress, s.State())
	s.Start()

	time.Sleep(2 * frameInterval)
	s.Stop()
	s.Stop()

	assert.Equal(t, SpinnerInProgress, s.State(), "Stop doesn't change state")
	assert.Contains(t, out.String(), "Connecting...")
}

func TestSpinnerFinalStates(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*Spinner)
		state  SpinnerState
		symbol string
	}{
		{name: "success", finish: (*Spinner).Success, state: SpinnerSuccess, symbol: SymbolSuccess},
		{name: "fail", finish: (*Spinner).Fail, state: SpinnerFailed, symbol: SymbolFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			s := NewSpinner("Connecting", out)
			s.Start()
			tt.finish(s)

			assert.Equal(t, tt.state, s.State())
			assert.Contains(t, out.String(), tt.symbol)
			assert.Contains(t, out.String(), "Connecting")
		})
	}
}

func TestSpinnerSetLabel(t *testing.T) {
	s := NewSpinner("one", &syncBuffer{})
	s.SetLabel("two")
	assert.Equal(t, "two", s.Label())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", formatDuration(50*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
}
