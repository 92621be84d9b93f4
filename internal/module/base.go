package module

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/quandary/internal/llm"
)

// base is the shared engine behind every prompt module: render the
// module's template, send the result as a schema-constrained request,
// and parse the structured response.
type base struct {
	provider  llm.Provider
	templates *Templates
	cfg       Config
}

// forward runs one template through the provider. purpose doubles as the
// template name and the request's purpose label; out receives the parsed
// response.
func (b *base) forward(ctx context.Context, purpose, system string, data any, schema *llm.Schema, out any) error {
	ctx = llm.WithPurpose(ctx, purpose)

	tmpl, err := b.templates.Lookup(purpose)
	if err != nil {
		return err
	}
	userMsg, err := render(tmpl, data)
	if err != nil {
		return err
	}

	req := llm.Request{
		System:      system,
		Prompt:      userMsg,
		Schema:      schema,
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.cfg.Temperature,
	}

	resp, err := b.provider.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("LLM %s failed: %w", purpose, err)
	}
	if err := json.Unmarshal(resp.Content, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", purpose, err)
	}
	return nil
}
