// Package interpreter turns free-text alert requests into structured rules and
// evaluates those rules against live match snapshots, using Gemini
// generateContent through google.golang.org/genai.
//
// Prompts are embedded (prompts/*.md) and may be overridden from disk. The
// user prompt template substitutes {USER_ALERT_TEXT}, {LIVE_JSON}, {STATE}
// and {TRIGGERED_ALERTS}.
//
// Any transport failure or unparseable model output is returned as an error;
// output that is not the expected JSON shape wraps ErrMalformed.
package interpreter
