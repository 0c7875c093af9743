// Package output formats revbridge reports for display or machine
// consumption.
//
// Three formats are supported:
//   - text     for the terminal, optionally colored (default)
//   - json     for the full structured report
//   - markdown for pasting into a review comment
//
// Use [GetWriter] to obtain a [Writer] for a given format string, then call
// [Writer.Write] with an [io.Writer] and a [*Report]. [WriteReport] picks
// the destination.
package output
