package llm

import (
	"context"
	"encoding/json"
)

// Provider generates structured answers from a single prompt.
type Provider interface {
	// Generate sends one prompt to the model and returns its response.
	// When req.Schema is set the provider asks for JSON conforming to the
	// schema and validates the result before returning it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request is a single-turn generation request. Answering and decomposition
// never carry conversation history, so the request is a system prompt plus
// one rendered user prompt rather than a message list.
type Request struct {
	// System sets the model's role and constraints. Optional.
	System string

	// Prompt is the rendered user prompt for this call.
	Prompt string

	// Schema, when set, constrains the output to JSON matching the schema
	// via the provider's native structured output mechanism. When nil the
	// raw text response is returned as-is in Content.
	Schema *Schema

	// MaxTokens caps the response length.
	MaxTokens int

	// Temperature in [0, 1]. Zero means deterministic.
	Temperature float64
}

// Schema names a JSON Schema the response must conform to.
type Schema struct {
	// Name identifies the schema, kebab-case, e.g. "question-answer".
	// Providers use it as the structured-output name where their API
	// requires one.
	Name string

	// Description tells the model what the schema represents.
	Description string

	// Definition is the JSON Schema document as a map.
	Definition map[string]any
}

// Response is the model's output for one Request.
type Response struct {
	// Content is the generated output. Validated JSON when the request
	// carried a Schema, raw text otherwise.
	Content json.RawMessage

	// Usage reports token consumption for this call.
	Usage Usage

	// Model is the model that actually served the request, which may be a
	// fuller ID than the one configured.
	Model string

	// StopReason is normalized across providers to "end" or "max_tokens".
	StopReason string
}

// Usage counts tokens for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
