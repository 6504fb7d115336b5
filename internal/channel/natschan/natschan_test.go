package natschan

import (
	"testing"
	"time"

	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "instances.events.>", EventSubject("instances"))
	assert.Equal(t, "dash.commands.toggle_monitoring", CommandSubject("dash", channel.CommandToggleMonitoring))
}

func TestEventName(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		ok      bool
	}{
		{subject: "instances.events.status_change", want: "status_change", ok: true},
		{subject: "instances.events.instance_deleted", want: "instance_deleted", ok: true},
		{subject: "instances.events.", ok: false},
		{subject: "instances.commands.request_update", ok: false},
		{subject: "other.events.status_change", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, ok := EventName("instances", tt.subject)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	d := New("nats://localhost:4222", "", 0)
	assert.Equal(t, DefaultPrefix, d.prefix)
	assert.Equal(t, 30*time.Second, d.timeout)
}

type errHandler struct{ errs chan error }

func (h *errHandler) OnOpen()                            {}
func (h *errHandler) OnClose(channel.CloseReason, error) {}
func (h *errHandler) OnError(err error)                  { h.errs <- err }
func (h *errHandler) OnEvent(string, []byte)             {}

func TestDial_UnreachableServerReportsError(t *testing.T) {
	d := New("nats://127.0.0.1:1", "instances", 500*time.Millisecond)
	h := &errHandler{errs: make(chan error, 1)}

	ch, err := d.Dial(h)
	require.NoError(t, err)

	select {
	case err := <-h.errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a connect error")
	}
	assert.Error(t, ch.Emit(channel.CommandGetInstancesStatus, nil))
	assert.NoError(t, ch.Close())
}
