// Package config loads and merges revbridge configuration from multiple
// sources with spf13/viper.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (REVBRIDGE_CONDUIT_URI, REVBRIDGE_LOG_LEVEL, etc.)
//  3. Config file ($XDG_CONFIG_HOME/revbridge/config.yaml, or --config)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Save] to write one back, and
// [SetField] to update a single key.
package config
