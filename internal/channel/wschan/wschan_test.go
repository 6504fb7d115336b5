package wschan

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type event struct {
	kind   string
	name   string
	data   string
	reason channel.CloseReason
	err    error
}

type chanHandler struct {
	events chan event
}

func newChanHandler() *chanHandler {
	return &chanHandler{events: make(chan event, 16)}
}

func (h *chanHandler) OnOpen() { h.events <- event{kind: "open"} }
func (h *chanHandler) OnClose(r channel.CloseReason, err error) {
	h.events <- event{kind: "close", reason: r, err: err}
}
func (h *chanHandler) OnError(err error) { h.events <- event{kind: "error", err: err} }
func (h *chanHandler) OnEvent(name string, data []byte) {
	h.events <- event{kind: "event", name: name, data: string(data)}
}

func (h *chanHandler) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for handler call")
		return event{}
	}
}

func (h *chanHandler) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-h.events:
		t.Fatalf("unexpected handler call: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

// backend upgrades every request and hands the server side of the socket to fn.
func backend(t *testing.T, fn func(*websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fn(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew_RejectsNonWebSocketScheme(t *testing.T) {
	_, err := New("http://localhost:5000")
	assert.Error(t, err)

	_, err = New("ws://localhost:5000/ws")
	assert.NoError(t, err)
}

func TestDial_RoundTrip(t *testing.T) {
	received := make(chan channel.Envelope, 1)
	url := backend(t, func(conn *websocket.Conn) {
		frame, _ := channel.EncodeEnvelope(channel.EventInstanceDeleted, map[string]any{"instanceId": 4})
		_ = conn.WriteMessage(websocket.TextMessage, frame)

		_, msg, err := conn.ReadMessage()
		if err == nil {
			env, _ := channel.DecodeEnvelope(msg)
			received <- env
		}
		// Hold the socket open until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	d, err := New(url, WithLogger(logger.Noop()))
	require.NoError(t, err)
	h := newChanHandler()
	ch, err := d.Dial(h)
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "open", h.next(t).kind)

	e := h.next(t)
	assert.Equal(t, "event", e.kind)
	assert.Equal(t, channel.EventInstanceDeleted, e.name)
	assert.JSONEq(t, `{"instanceId":4}`, e.data)

	require.NoError(t, ch.Emit(channel.CommandRequestUpdate, channel.RequestUpdatePayload{InstanceID: 4}))
	select {
	case env := <-received:
		assert.Equal(t, channel.CommandRequestUpdate, env.Event)
		var p map[string]any
		require.NoError(t, json.Unmarshal(env.Data, &p))
		assert.Equal(t, float64(4), p["instanceId"])
	case <-time.After(waitFor):
		t.Fatal("server never received the command")
	}
}

func TestDial_RemoteCloseReported(t *testing.T) {
	url := backend(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})

	d, err := New(url)
	require.NoError(t, err)
	h := newChanHandler()
	_, err = d.Dial(h)
	require.NoError(t, err)

	assert.Equal(t, "open", h.next(t).kind)
	e := h.next(t)
	assert.Equal(t, "close", e.kind)
	assert.Equal(t, channel.CloseRemote, e.reason)
	assert.NoError(t, e.err)
}

func TestDial_MalformedFramesSkipped(t *testing.T) {
	url := backend(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"data":{}}`))
		frame, _ := channel.EncodeEnvelope(channel.EventError, map[string]string{"message": "x"})
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		_, _, _ = conn.ReadMessage()
	})

	log := logger.NewBufferLogger()
	d, err := New(url, WithLogger(log))
	require.NoError(t, err)
	h := newChanHandler()
	ch, err := d.Dial(h)
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "open", h.next(t).kind)
	e := h.next(t)
	assert.Equal(t, channel.EventError, e.name)
	assert.True(t, log.HasLevel("warn"))
}

func TestDial_FailureReportsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	d, err := New(url, WithDialTimeout(time.Second))
	require.NoError(t, err)
	h := newChanHandler()
	_, err = d.Dial(h)
	require.NoError(t, err, "Dial itself never waits on the network")

	e := h.next(t)
	assert.Equal(t, "error", e.kind)
	assert.Error(t, e.err)
}

func TestClose_LocalCloseIsSilent(t *testing.T) {
	url := backend(t, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})

	d, err := New(url)
	require.NoError(t, err)
	h := newChanHandler()
	ch, err := d.Dial(h)
	require.NoError(t, err)

	assert.Equal(t, "open", h.next(t).kind)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	h.none(t)

	assert.Error(t, ch.Emit(channel.CommandGetInstancesStatus, nil))
}

func TestEmit_BeforeOpenFails(t *testing.T) {
	c := &wsChannel{cancel: func() {}}
	assert.Error(t, c.Emit(channel.CommandGetInstancesStatus, nil))
}
