// Package conduit is a small client for the Phabricator Conduit API.
//
// Every call is a form POST to {uri}/api/{method} carrying JSON params and
// the API token. The client implements the commit message parser, user
// directory and diff source used by the rest of revbridge. Read-only results
// are cached on disk when a cache is configured, and error bodies are
// scrubbed of the token before they surface.
package conduit
