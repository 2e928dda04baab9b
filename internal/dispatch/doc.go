// Package dispatch delivers reminder texts to the user.
//
// A Dispatcher takes one display text and either delivers it or returns an
// error. Failures are the caller's to log; nothing here retries.
//
// # Channels
//
//   - console: a bordered box rendered with lipgloss on stdout
//   - log: an info-level log line (fallback when nothing else is enabled)
//   - telegram: a bot message to one chat/topic, token-bucket rate limited
//
// Router holds the active set of channels and can be re-configured while
// the ticker is running.
//
// # History
//
// For operator visibility, Router keeps a small in-memory history of recent
// deliveries and their outcome.
package dispatch
