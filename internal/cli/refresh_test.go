package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/rileyhilliard/instsync/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastFlags = commandFlags{Connect: 5 * time.Second, Timeout: 5 * time.Second}

func decodeCommandOutput(t *testing.T, buf *bytes.Buffer) CommandOutput {
	t.Helper()
	var env struct {
		Success bool          `json:"success"`
		Data    CommandOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	require.True(t, env.Success)
	return env.Data
}

func TestRunRefresh_OneOverPush(t *testing.T) {
	withMachineMode(t, true)
	b := newBackend(t, inst(7, "orders-db", "running", true))

	var buf bytes.Buffer
	require.NoError(t, runRefresh(context.Background(), b.config(), "7", fastFlags, &buf))

	out := decodeCommandOutput(t, &buf)
	assert.Equal(t, provider.PathPush, out.Path)
	require.NotNil(t, out.Instance)
	assert.Equal(t, instance.ID("7"), out.Instance.ID)
	assert.Equal(t, instance.StatusRunning, out.Instance.Status)
}

func TestRunRefresh_AllOverPush(t *testing.T) {
	withMachineMode(t, false)
	b := newBackend(t, inst(1, "a", "running", true), inst(2, "b", "error", true))

	var buf bytes.Buffer
	require.NoError(t, runRefresh(context.Background(), b.config(), "", fastFlags, &buf))
	assert.Contains(t, buf.String(), "refreshed 2 instances, 1 running, 1 error (via push)")
}

func TestRunRefresh_FallsBackToPull(t *testing.T) {
	withMachineMode(t, true)
	b := newBackend(t, inst(7, "orders-db", "running", true))
	b.disablePush()

	var buf bytes.Buffer
	require.NoError(t, runRefresh(context.Background(), b.config(), "7", fastFlags, &buf))

	out := decodeCommandOutput(t, &buf)
	assert.Equal(t, provider.PathPull, out.Path)
	require.NotNil(t, out.Instance)
	assert.Equal(t, "orders-db", out.Instance.InstanceName)
}

func TestRunRefresh_UnknownInstanceOverPull(t *testing.T) {
	withMachineMode(t, false)
	b := newBackend(t)
	b.disablePush()

	err := runRefresh(context.Background(), b.config(), "99", fastFlags, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCommand))
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Contains(t, err.Error(), "Instance not found")
}

func TestRunRefresh_UnknownInstanceOverPush(t *testing.T) {
	withMachineMode(t, false)
	b := newBackend(t)

	err := runRefresh(context.Background(), b.config(), "99", fastFlags, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCommand))
	assert.Contains(t, err.Error(), "unknown instance")
}

func TestRunToggle(t *testing.T) {
	withMachineMode(t, true)
	b := newBackend(t, inst(7, "orders-db", "running", true))

	var buf bytes.Buffer
	require.NoError(t, runToggle(context.Background(), b.config(), "7", false, fastFlags, &buf))

	out := decodeCommandOutput(t, &buf)
	assert.Equal(t, provider.PathPush, out.Path)
	assert.Equal(t, "monitoring updated", out.Message)
	require.NotNil(t, out.Instance)
	assert.False(t, out.Instance.IsMonitoring)
}

func TestRunToggle_ServerRejects(t *testing.T) {
	withMachineMode(t, false)
	b := newBackend(t, inst(7, "orders-db", "running", true))
	b.failToggles("instance locked")

	err := runToggle(context.Background(), b.config(), "7", true, fastFlags, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCommand))
	assert.Contains(t, err.Error(), "instance locked")
}

func TestRunToggle_NeedsPush(t *testing.T) {
	withMachineMode(t, false)
	b := newBackend(t, inst(7, "orders-db", "running", true))
	b.disablePush()

	err := runToggle(context.Background(), b.config(), "7", true, fastFlags, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTransport))
}

func TestParseOnOff(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{in: "on", want: true},
		{in: "ON", want: true},
		{in: "enable", want: true},
		{in: "true", want: true},
		{in: "off", want: false},
		{in: " disabled ", want: false},
		{in: "0", want: false},
		{in: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOnOff(tt.in)
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandFailed(t *testing.T) {
	err := commandFailed("refresh", provider.ErrAckTimeout)
	assert.True(t, errors.IsCode(err, errors.ErrCommand))
	assert.Contains(t, err.Error(), "longer --timeout")

	err = commandFailed("refresh", provider.ErrDisconnected)
	assert.Contains(t, err.Error(), "push channel isn't up")

	pull := errors.New(errors.ErrPull, "pull failed", "")
	assert.Same(t, pull, commandFailed("refresh", pull))
}
