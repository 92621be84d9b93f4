package module

// Config controls prompt rendering and generation limits shared by the
// answer and decompose modules.
type Config struct {
	// MaxTokens is the token budget for the LLM response.
	MaxTokens int

	// Temperature controls LLM output randomness (0.0-1.0).
	Temperature float64

	// MaxSubQuestions caps how many sub-questions a single
	// decomposition may produce.
	MaxSubQuestions int

	// MaxExtraInfo is the maximum number of fetched reference entries
	// to include in a prompt. Zero means include everything.
	MaxExtraInfo int
}

// DefaultConfig returns recommended defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       1024,
		Temperature:     0.2,
		MaxSubQuestions: 5,
		MaxExtraInfo:    20,
	}
}
