// Package provider fetches live match state from the Cricbuzz commentary
// endpoint and reduces it to a Snapshot the engine can evaluate.
//
// A Snapshot carries only what the engine inspects (Concluded) plus an opaque
// Payload (matchHeader, miniscore, commentaryList, matchId, timestamp) that is
// passed through to the rule interpreter untouched. Summary derives the
// human-readable match status served by the match endpoints.
//
// Every failure (transport, HTTP status, decode) wraps ErrUnavailable so the
// engine can treat it as a transient fetch failure.
package provider
