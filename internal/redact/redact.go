package redact

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for credentials that can surface in
// Conduit payloads, commit messages and transport errors.
var secretPatterns = []*regexp.Regexp{
	// Conduit API and CLI tokens
	regexp.MustCompile(`\b(api|cli)-[a-z0-9]{28}\b`),
	// Conduit certificates in arcrc-style assignments
	regexp.MustCompile(`(?i)("?cert"?)\s*[:=]\s*"?[A-Za-z0-9]{64,}"?`),
	// Generic API keys (long hex/base64 strings after common key patterns)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// Generic secrets/tokens/passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// Private key blocks
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE KEY-----`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllString(result, placeholder)
	}
	return result
}

// Token removes every occurrence of a known token, then applies Secrets.
func Token(text, token string) string {
	if token != "" {
		text = strings.ReplaceAll(text, token, placeholder)
	}
	return Secrets(text)
}

// Truncate shortens text to at most n bytes for embedding in errors and logs.
func Truncate(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	return text[:n] + "...(truncated)"
}
