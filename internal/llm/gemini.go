package llm

import (
	"context"
	"encoding/json"
	"os"

	genai "google.golang.org/genai"
)

// Gemini wraps the official genai client. One instance is safe for
// concurrent use across check runs.
type Gemini struct {
	cli   *genai.Client
	model string
}

// NewGemini builds a Gemini client for the given model. The genai SDK reads
// GEMINI_API_KEY from the environment; the key is checked here so a missing
// credential fails at startup instead of inside the first run.
func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	if os.Getenv("GEMINI_API_KEY") == "" {
		return nil, ErrNoAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &Gemini{cli: cli, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

// GenerateJSON concatenates prompt and input, asks for application/json,
// and returns the model's JSON verbatim.
func (g *Gemini) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, _ := json.MarshalIndent(input, "", "  ")
	full := prompt + "\n\n[INPUT]\n" + string(in)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
}
