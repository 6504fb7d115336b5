package provider

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotConnected rejects commands that need the push channel.
	ErrNotConnected = errors.New("push channel not connected")
	// ErrDisconnected fails commands whose ack was lost to a disconnect.
	ErrDisconnected = errors.New("push channel disconnected before the command was acknowledged")
	// ErrClosed fails commands still pending when the provider shuts down.
	ErrClosed = errors.New("provider closed")
	// ErrAckTimeout fails commands the server never acknowledged.
	ErrAckTimeout = errors.New("command not acknowledged in time")
)

// Path says how a command was carried out.
type Path string

const (
	PathPush Path = "push"
	PathPull Path = "pull"
)

// Result tracks one asynchronous command. It completes exactly once.
type Result struct {
	// ID correlates the command with log lines.
	ID      string
	Command string
	Path    Path

	once    sync.Once
	done    chan struct{}
	err     error
	message string
}

func newResult(id, command string, path Path) *Result {
	return &Result{ID: id, Command: command, Path: path, done: make(chan struct{})}
}

func failedResult(id, command string, path Path, err error) *Result {
	r := newResult(id, command, path)
	r.complete(err, "")
	return r
}

// Resolved returns a Result that has already completed with err. Fakes of
// Consumer use it to answer commands synchronously.
func Resolved(command string, path Path, err error) *Result {
	return failedResult(newCommandID(), command, path, err)
}

func (r *Result) complete(err error, message string) bool {
	completed := false
	r.once.Do(func() {
		r.err = err
		r.message = message
		close(r.done)
		completed = true
	})
	return completed
}

// Done is closed when the command completes.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the command completes or ctx ends, and returns the
// command's error.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the command's error, or nil if it succeeded or is still pending.
func (r *Result) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Message is the server's human-readable reply, if any.
func (r *Result) Message() string {
	select {
	case <-r.done:
		return r.message
	default:
		return ""
	}
}

// OK reports whether the command completed successfully.
func (r *Result) OK() bool {
	select {
	case <-r.done:
		return r.err == nil
	default:
		return false
	}
}

// CommandError is a failure the server reported in an ack.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return e.Command + " failed"
	}
	return e.Command + " failed: " + e.Message
}
