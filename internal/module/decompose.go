package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/abhisek/quandary/internal/llm"
	"github.com/abhisek/quandary/internal/question"
)

const decomposeSystemPrompt = `You break complex questions into smaller, independently answerable sub-questions.

Rules:
- Each sub-question must be self-contained: answerable without seeing the original question.
- Keep the list minimal. Prefer fewer, sharper sub-questions over many shallow ones.
- Use depends_on only when one sub-question genuinely needs another's answer, and only with indices of earlier entries.
- If the question is already simple enough to answer directly, return an empty list. Do not split for the sake of splitting.`

// DecomposeModule splits a question into sub-questions via the LLM. The
// ordering constraints the model emits become dependency links between
// the new nodes.
type DecomposeModule struct {
	base
}

// NewDecomposeModule creates a DecomposeModule.
func NewDecomposeModule(provider llm.Provider, templates *Templates, cfg Config) *DecomposeModule {
	return &DecomposeModule{
		base: base{provider: provider, templates: templates, cfg: cfg},
	}
}

// decomposeData is the template payload for decompose.tmpl.
type decomposeData struct {
	Question string
	Context  string
	MaxParts int
}

// decomposeOutput is the raw LLM response before linking.
type decomposeOutput struct {
	SubQuestions []struct {
		Question  string `json:"question"`
		DependsOn []int  `json:"depends_on"`
	} `json:"sub_questions"`
}

// Decompose returns new nodes for n's sub-questions, wired to each other
// per the model's depends_on indices. An empty slice means n should be
// answered directly.
func (m *DecomposeModule) Decompose(ctx context.Context, n *question.Node) ([]*question.Node, error) {
	data := decomposeData{
		Question: n.Body,
		Context:  n.Context,
		MaxParts: m.cfg.MaxSubQuestions,
	}

	var raw decomposeOutput
	if err := m.forward(ctx, "decompose", decomposeSystemPrompt, data, DecomposeSchema, &raw); err != nil {
		return nil, err
	}
	return m.link(n, raw)
}

// link materializes the model's sub-questions as nodes, resolving
// depends_on indices into dependency edges. Forward or out-of-range
// references are rejected rather than repaired.
func (m *DecomposeModule) link(n *question.Node, raw decomposeOutput) ([]*question.Node, error) {
	parts := raw.SubQuestions
	if m.cfg.MaxSubQuestions > 0 && len(parts) > m.cfg.MaxSubQuestions {
		parts = parts[:m.cfg.MaxSubQuestions]
	}

	nodes := make([]*question.Node, 0, len(parts))
	for i, p := range parts {
		body := strings.TrimSpace(p.Question)
		if body == "" {
			return nil, fmt.Errorf("sub-question %d of node %s is empty", i, n.ID)
		}
		// Sub-questions inherit the parent's context verbatim.
		sub, err := question.New(body, question.WithContext(n.Context))
		if err != nil {
			return nil, fmt.Errorf("sub-question %d of node %s: %w", i, n.ID, err)
		}
		for _, dep := range p.DependsOn {
			if dep < 0 || dep >= i {
				return nil, fmt.Errorf("sub-question %d of node %s depends on invalid index %d", i, n.ID, dep)
			}
			sub.AddDependency(nodes[dep])
		}
		nodes = append(nodes, sub)
	}
	return nodes, nil
}
