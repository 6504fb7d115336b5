package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rileyhilliard/instsync/internal/channel"
	"github.com/rileyhilliard/instsync/internal/config"
)

// backend is a test double of the dashboard server: REST under
// /api/instances and the push channel on /ws.
type backend struct {
	server *httptest.Server

	mu        sync.Mutex
	instances []map[string]any
	commands  []string
	push      bool
	toggleErr string
}

func newBackend(t *testing.T, instances ...map[string]any) *backend {
	t.Helper()
	b := &backend{instances: instances, push: true}

	r := mux.NewRouter()
	r.HandleFunc("/api/instances", b.list).Methods(http.MethodGet)
	r.HandleFunc("/api/instances/{id}", b.get).Methods(http.MethodGet)
	r.HandleFunc("/ws", b.ws)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Push.URL = "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
	cfg.Pull.URL = b.server.URL
	cfg.Push.AckTimeout = 5 * time.Second
	cfg.Reconnect.MaxAttempts = 0
	return cfg
}

func (b *backend) disablePush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.push = false
}

func (b *backend) failToggles(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toggleErr = message
}

func (b *backend) snapshot() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(make([]map[string]any, 0, len(b.instances)), b.instances...)
}

func (b *backend) find(id string) (map[string]any, bool) {
	for _, inst := range b.snapshot() {
		if jsonID(inst["id"]) == id {
			return inst, true
		}
	}
	return nil, false
}

func (b *backend) received() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

func (b *backend) list(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(b.snapshot())
}

func (b *backend) get(w http.ResponseWriter, r *http.Request) {
	inst, ok := b.find(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(inst)
}

func (b *backend) ws(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	enabled := b.push
	b.mu.Unlock()
	if !enabled {
		http.Error(w, "push disabled", http.StatusServiceUnavailable)
		return
	}

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	c, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	send := func(event string, payload any) {
		frame, err := channel.EncodeEnvelope(event, payload)
		if err != nil {
			return
		}
		_ = c.WriteMessage(websocket.TextMessage, frame)
	}

	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			return
		}
		env, err := channel.DecodeEnvelope(frame)
		if err != nil {
			continue
		}
		b.mu.Lock()
		b.commands = append(b.commands, env.Event)
		b.mu.Unlock()

		var req struct {
			InstanceID   any  `json:"instanceId"`
			IsMonitoring bool `json:"isMonitoring"`
		}
		_ = json.Unmarshal(env.Data, &req)

		switch env.Event {
		case channel.CommandGetInstancesStatus:
			send(channel.EventInstancesStatus, map[string]any{"instances": b.snapshot()})
		case channel.CommandRequestUpdate:
			if req.InstanceID == nil {
				send(channel.EventInstancesStatus, map[string]any{"instances": b.snapshot()})
				continue
			}
			inst, ok := b.find(jsonID(req.InstanceID))
			if !ok {
				send(channel.EventUpdateResponse, map[string]any{"success": false, "message": "unknown instance"})
				continue
			}
			send(channel.EventUpdateResponse, map[string]any{"success": true, "instanceId": req.InstanceID, "instance": inst})
		case channel.CommandToggleMonitoring:
			b.mu.Lock()
			failure := b.toggleErr
			b.mu.Unlock()
			if failure != "" {
				send(channel.EventMonitoringToggled, map[string]any{"success": false, "message": failure})
				continue
			}
			send(channel.EventMonitoringToggled, map[string]any{
				"success":      true,
				"instanceId":   req.InstanceID,
				"isMonitoring": req.IsMonitoring,
				"message":      "monitoring updated",
			})
		}
	}
}

// jsonID renders a JSON id (number or string) as text.
func jsonID(v any) string {
	switch id := v.(type) {
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case string:
		return id
	}
	return ""
}

func inst(id int, name, status string, monitoring bool) map[string]any {
	return map[string]any{
		"id":            id,
		"instanceName":  name,
		"host":          "10.0.0." + strconv.Itoa(id),
		"port":          5432,
		"dbType":        "postgres",
		"status":        status,
		"isMonitoring":  monitoring,
		"lastCheckTime": "2026-03-01T12:00:00Z",
		"cpuUsage":      40,
		"memoryUsage":   20,
	}
}
