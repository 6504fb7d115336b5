// Package cli implements the instsync command-line interface.
//
// Every command that talks to the backend builds one provider.Provider
// from the loaded config (see session.go), starts it, does its work
// against the Consumer surface, and closes it on the way out.
//
// # Command Structure
//
//	instsync watch              - Live dashboard (push with pull fallback)
//	instsync status             - Print a snapshot of every instance
//	instsync refresh [id]       - Ask for a fresh check of one or all instances
//	instsync toggle <id> on|off - Enable or disable health monitoring
//	instsync init               - Write a .instsync.yaml
//	instsync version            - Build information
//
// # Flag Handling
//
// Global flags (--config, --debug, --json) are defined on the root command
// and available to all subcommands. With --json, commands write a single
// JSONEnvelope to stdout and errors are reported in the same envelope.
package cli
