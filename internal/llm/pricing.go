package llm

// ModelCost is USD pricing per 1 million tokens for one model.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost returns the USD cost of a call with the given token counts.
func (c ModelCost) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.InputPerMTok/1_000_000 +
		float64(outputTokens)*c.OutputPerMTok/1_000_000
}

// LookupCost returns pricing for a model ID, nil when unknown. Callers
// treat unknown models as unpriced rather than free.
func LookupCost(modelID string) *ModelCost {
	if c, ok := modelCosts[modelID]; ok {
		return &c
	}
	return nil
}

// modelCosts covers the models the providers can resolve to, plus the
// OpenRouter IDs of the same families. Prices from models.dev,
// last checked 2026-02-15.
var modelCosts = map[string]ModelCost{
	// Anthropic
	"claude-sonnet-4-20250514":  {3, 15},
	"claude-haiku-4-5-20251001": {1, 5},
	"claude-haiku-4-5":          {1, 5},
	"claude-sonnet-4-0":         {3, 15},

	// OpenAI
	"gpt-4o":            {2.5, 10},
	"gpt-4o-2024-08-06": {2.5, 10},
	"gpt-4o-2024-11-20": {2.5, 10},
	"gpt-4o-mini":       {0.15, 0.6},

	// Gemini
	"gemini-2.0-flash":      {0.1, 0.4},
	"gemini-2.0-flash-lite": {0.075, 0.3},
	"gemini-2.0-pro":        {1.25, 10},

	// OpenRouter pass-through IDs
	"anthropic/claude-sonnet-4":   {3, 15},
	"anthropic/claude-haiku-4.5":  {1, 5},
	"openai/gpt-4o":               {2.5, 10},
	"openai/gpt-4o-mini":          {0.15, 0.6},
	"google/gemini-2.0-flash-exp": {0.1, 0.4},
	"google/gemini-2.0-flash-001": {0.1, 0.4},
	"meta-llama/llama-3.3-70b":    {0.13, 0.4},
	"mistralai/mistral-small-24b": {0.07, 0.14},
	"deepseek/deepseek-chat-v3":   {0.3, 0.88},
	"qwen/qwen-2.5-72b-instruct":  {0.12, 0.39},
}
