package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"strings"

	"github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/provider"
)

// Machine mode flag - when true, outputs JSON and suppresses human-friendly decorations
var machineMode bool

// MachineMode returns true if machine-readable output is enabled
func MachineMode() bool {
	return machineMode
}

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
// All --json output should use this envelope.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	Details    interface{} `json:"details,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigNotFound  = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeTransportFailed = "TRANSPORT_FAILED"
	ErrCodeProtocol        = "PROTOCOL_ERROR"
	ErrCodePullFailed      = "PULL_FAILED"
	ErrCodeNotConnected    = "NOT_CONNECTED"
	ErrCodeAckTimeout      = "ACK_TIMEOUT"
	ErrCodeCommandFailed   = "COMMAND_FAILED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeUnknown         = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	env := JSONEnvelope{
		Success: true,
		Data:    data,
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONError writes an error response to the writer.
func WriteJSONError(w io.Writer, code, message, suggestion string, details interface{}) error {
	env := JSONEnvelope{
		Success: false,
		Error: &JSONError{
			Code:       code,
			Message:    message,
			Suggestion: suggestion,
			Details:    details,
		},
	}
	return writeJSONEnvelope(w, env)
}

// WriteJSONFromError converts a Go error to a JSON error response.
func WriteJSONFromError(w io.Writer, err error) error {
	env := JSONEnvelope{
		Success: false,
		Error:   ErrorToJSON(err),
	}
	return writeJSONEnvelope(w, env)
}

// writeJSONEnvelope writes the envelope with consistent formatting.
func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	var isErr *errors.Error
	if stderrors.As(err, &isErr) {
		return &JSONError{
			Code:       mapErrorCode(isErr.Code, isErr.Message),
			Message:    isErr.Message,
			Suggestion: isErr.Suggestion,
		}
	}

	var cmdErr *provider.CommandError
	switch {
	case stderrors.As(err, &cmdErr):
		return &JSONError{
			Code:    ErrCodeCommandFailed,
			Message: err.Error(),
			Details: map[string]interface{}{"command": cmdErr.Command},
		}
	case stderrors.Is(err, provider.ErrNotConnected), stderrors.Is(err, provider.ErrDisconnected):
		return &JSONError{
			Code:       ErrCodeNotConnected,
			Message:    err.Error(),
			Suggestion: "Check push.url and that the server is up, then retry",
		}
	case stderrors.Is(err, provider.ErrAckTimeout):
		return &JSONError{Code: ErrCodeAckTimeout, Message: err.Error()}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &JSONError{Code: ErrCodeTimeout, Message: err.Error()}
	}

	return &JSONError{
		Code:    ErrCodeUnknown,
		Message: err.Error(),
	}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(internalCode, message string) string {
	switch internalCode {
	case errors.ErrConfig:
		// Distinguish between not found and invalid
		msgLower := strings.ToLower(message)
		if strings.Contains(msgLower, "not found") || strings.Contains(msgLower, "no config") {
			return ErrCodeConfigNotFound
		}
		return ErrCodeConfigInvalid
	case errors.ErrTransport:
		return ErrCodeTransportFailed
	case errors.ErrProtocol:
		return ErrCodeProtocol
	case errors.ErrPull:
		return ErrCodePullFailed
	case errors.ErrCommand:
		return ErrCodeCommandFailed
	}

	return ErrCodeUnknown
}
