// Package gemini implements generation.Generator on top of Google's Gemini
// API through the google.golang.org/genai client.
//
// Prompts are text/template files embedded from prompts/. Each call asks the
// model for a JSON document, retries transient failures with exponential
// backoff and jitter, and validates every draft before returning it. Safety
// blocks and unparseable responses are permanent and never retried.
package gemini
