// Package cli wires together the Cobra command tree for the revbridge binary.
//
// It defines the root command and all subcommands (fields, materialize,
// check-message, hook, config, cache, version), binds flags, reads
// configuration, builds the Conduit or local pipeline, and returns
// deterministic exit codes for scripts and git hooks.
package cli
