// Package llm is the model access layer. Planner, judgment runs, and the
// consolidator's judge all speak through the Client interface; the concrete
// backend is chosen once at startup.
//
// Clients stay thin: retries, timeouts, and logging belong to the callers,
// which already own attempt budgets and cancellation.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrEmptyResponse reports a completion with no usable candidate text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrNoAPIKey reports a missing credential at client construction.
	ErrNoAPIKey = errors.New("llm: GEMINI_API_KEY is not set")
)

// Client generates structured JSON output for a prompt plus input payload.
type Client interface {
	// GenerateJSON asks for an application/json response and returns the raw
	// model output. Callers unmarshal and validate; the client never
	// interprets the payload.
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	// Name identifies the backend and model for logs and reports.
	Name() string
}
