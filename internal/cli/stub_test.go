package cli

import (
	"time"

	"github.com/rileyhilliard/instsync/internal/conn"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/provider"
)

// consumerStub is a minimal provider.Consumer for formatting tests.
type consumerStub struct {
	records []instance.Record
	err     error
}

func (s *consumerStub) GetInstance(id instance.ID) (instance.Record, bool) {
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return instance.Record{}, false
}

func (s *consumerStub) Instances() []instance.Record {
	return s.records
}

func (s *consumerStub) IsOnline(id instance.ID) bool {
	return false
}

func (s *consumerStub) IsMonitoring(id instance.ID) bool {
	return false
}

func (s *consumerStub) StatusStats() instance.Stats {
	return instance.Count(s.records)
}

func (s *consumerStub) Reconnect() {}

func (s *consumerStub) Subscribe(func(provider.Update)) func() {
	return func() {}
}

func (s *consumerStub) LastCheck(id instance.ID) (time.Time, bool) {
	return time.Time{}, false
}

func (s *consumerStub) ConnectionInfo() provider.ConnectionInfo {
	return provider.ConnectionInfo{Info: conn.Info{State: conn.Disconnected, LastError: s.err}}
}

func (s *consumerStub) RefreshInstance(id instance.ID) *provider.Result {
	return provider.Resolved("request_update", provider.PathPull, nil)
}

func (s *consumerStub) RefreshAll() *provider.Result {
	return provider.Resolved("request_update", provider.PathPull, nil)
}

func (s *consumerStub) ToggleMonitoring(id instance.ID, enabled bool) *provider.Result {
	return provider.Resolved("toggle_monitoring", provider.PathPush, provider.ErrNotConnected)
}

var _ provider.Consumer = (*consumerStub)(nil)
