package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUnknownCommandError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unknown command error", err: errors.New(`unknown command "foo" for "instsync"`), want: true},
		{name: "unknown flag error", err: errors.New(`unknown flag: --foo`), want: true},
		{name: "other error", err: errors.New("connection failed"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUnknownCommandError(tt.err))
		})
	}
}

func TestExtractUnknownCommand(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "standard cobra format", err: errors.New(`unknown command "foo" for "instsync"`), want: "foo"},
		{name: "command with hyphen", err: errors.New(`unknown command "re-fresh" for "instsync"`), want: "re-fresh"},
		{name: "no quotes returns empty", err: errors.New("unknown command foo"), want: ""},
		{name: "single quote returns empty", err: errors.New(`unknown command "foo`), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractUnknownCommand(tt.err))
		})
	}
}

func TestRootCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"watch", "status", "refresh", "toggle", "init", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}

	for _, flag := range []string{"config", "debug", "json"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func TestToggleRequiresTwoArgs(t *testing.T) {
	assert.Error(t, toggleCmd.Args(toggleCmd, []string{"42"}))
	assert.NoError(t, toggleCmd.Args(toggleCmd, []string{"42", "on"}))
	assert.Error(t, refreshCmd.Args(refreshCmd, []string{"1", "2"}))
}
