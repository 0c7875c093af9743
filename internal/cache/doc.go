// Package cache provides a file-based cache for idempotent Conduit reads.
//
// Cache entries are keyed by a SHA-256 hash of the Conduit endpoint, method
// name and JSON parameters (never the API token). Each entry stores the raw
// "result" payload with a creation timestamp and a TTL in seconds. Expired
// entries are skipped on read and counted by [Cache.GetStats].
//
// The default cache directory is $XDG_CACHE_HOME/revbridge (or the
// OS-appropriate equivalent).
package cache
