package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineMode_DefaultValue(t *testing.T) {
	withMachineMode(t, false)
	assert.False(t, MachineMode())

	machineMode = true
	assert.True(t, MachineMode())
}

func TestWriteJSONSuccess_BasicData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONSuccess(&buf, map[string]string{"key": "value"}))

	var env JSONEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))

	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	dataMap, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "value", dataMap["key"])
}

func TestWriteJSONError(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONError(&buf, ErrCodeTimeout, "too slow", "wait longer", map[string]int{"ms": 5}))

	var env JSONEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrCodeTimeout, env.Error.Code)
	assert.Equal(t, "wait longer", env.Error.Suggestion)
	assert.NotContains(t, buf.String(), `"data"`)
}

func TestErrorToJSON(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "config not found", err: errors.New(errors.ErrConfig, "Config file not found", ""), wantCode: ErrCodeConfigNotFound},
		{name: "config invalid", err: errors.New(errors.ErrConfig, "'push.url' is required", ""), wantCode: ErrCodeConfigInvalid},
		{name: "transport", err: errors.New(errors.ErrTransport, "Could not reach the push channel", ""), wantCode: ErrCodeTransportFailed},
		{name: "protocol", err: errors.New(errors.ErrProtocol, "bad body", ""), wantCode: ErrCodeProtocol},
		{name: "pull", err: errors.New(errors.ErrPull, "GET failed", ""), wantCode: ErrCodePullFailed},
		{name: "wrapped command", err: errors.WrapWithCode(provider.ErrAckTimeout, errors.ErrCommand, "Couldn't refresh", ""), wantCode: ErrCodeCommandFailed},
		{name: "server rejection", err: &provider.CommandError{Command: "toggle_monitoring", Message: "locked"}, wantCode: ErrCodeCommandFailed},
		{name: "not connected", err: provider.ErrNotConnected, wantCode: ErrCodeNotConnected},
		{name: "disconnected", err: fmt.Errorf("toggle: %w", provider.ErrDisconnected), wantCode: ErrCodeNotConnected},
		{name: "ack timeout", err: provider.ErrAckTimeout, wantCode: ErrCodeAckTimeout},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "generic", err: fmt.Errorf("boom"), wantCode: ErrCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorToJSON(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}

	assert.Nil(t, ErrorToJSON(nil))
}

func TestWriteJSONFromError(t *testing.T) {
	var buf bytes.Buffer
	err := errors.New(errors.ErrConfig, "Config file not found", "Run 'instsync init'")
	require.NoError(t, WriteJSONFromError(&buf, err))

	var env JSONEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, ErrCodeConfigNotFound, env.Error.Code)
	assert.Equal(t, "Run 'instsync init'", env.Error.Suggestion)
}
