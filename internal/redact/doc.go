// Package redact scrubs credentials from text before it is logged or embedded
// in an error.
//
// Detection uses regex heuristics for Conduit API tokens and certificates,
// bearer tokens, private key blocks and common key/secret assignments.
// [Token] additionally removes a specific configured token verbatim.
package redact
