// Package cli wires the local-brain cobra commands: the root review command
// and its models, config and version subcommands.
package cli
