package module

import "github.com/abhisek/quandary/internal/llm"

// AnswerSchema defines the JSON schema for answering responses.
var AnswerSchema = &llm.Schema{
	Name:        "question-answer",
	Description: "The final answer to a question, with the reasoning that produced it",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "The complete answer to the question, in plain text",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "Brief reasoning behind the answer. Not shown to the asker.",
			},
		},
		"required":             []any{"answer", "reasoning"},
		"additionalProperties": false,
	},
}

// DecomposeSchema defines the JSON schema for decomposition responses.
// depends_on uses zero-based indices into the same sub_questions array, so
// the model can express ordering between the parts it produces.
var DecomposeSchema = &llm.Schema{
	Name:        "question-decomposition",
	Description: "A question split into smaller sub-questions with ordering constraints",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sub_questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question": map[string]any{
							"type":        "string",
							"description": "One self-contained sub-question",
						},
						"depends_on": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":    "integer",
								"minimum": 0,
							},
							"description": "Zero-based indices of earlier sub-questions whose answers this one needs. Empty when independent.",
						},
					},
					"required":             []any{"question", "depends_on"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"sub_questions"},
		"additionalProperties": false,
	},
}
