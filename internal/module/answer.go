package module

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/abhisek/quandary/internal/llm"
	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

const answerSystemPrompt = `You answer questions as part of a larger research task.

Rules:
- Answer only the question asked. The surrounding task is not your concern.
- Prerequisite answers and sub-question answers below are trusted facts; build on them instead of re-deriving them.
- When the question was split into sub-questions, synthesize their answers into one complete response.
- Use the reference material when it is relevant; ignore it when it is not.
- Be direct and complete. No hedging filler, no restating the question.`

// AnswerModule answers a single question by rendering its body together
// with everything the run has already established: prerequisite answers,
// sub-question answers, shared context, and fetched reference material.
type AnswerModule struct {
	base
	outputs *pipeline.OutputMap
}

// NewAnswerModule creates an AnswerModule. outputs may be nil when no
// fetchers contribute reference material.
func NewAnswerModule(provider llm.Provider, templates *Templates, outputs *pipeline.OutputMap, cfg Config) *AnswerModule {
	return &AnswerModule{
		base:    base{provider: provider, templates: templates, cfg: cfg},
		outputs: outputs,
	}
}

// qaPair is one prior question with its answer, for prompt rendering.
type qaPair struct {
	Question string
	Answer   string
}

// kvPair is one fetched reference entry, for prompt rendering.
type kvPair struct {
	Key   string
	Value string
}

// answerData is the template payload for answer.tmpl.
type answerData struct {
	Question     string
	Context      string
	Dependencies []qaPair
	SubAnswers   []qaPair
	Extras       []kvPair
}

// answerOutput is the raw LLM response before extraction.
type answerOutput struct {
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning"`
}

// Answer resolves one node. Called only after the node's dependencies and
// children are solved, so every referenced answer is present.
func (m *AnswerModule) Answer(ctx context.Context, n *question.Node) (string, error) {
	data := answerData{
		Question:     n.Body,
		Context:      n.Context,
		Dependencies: collectAnswers(n.Dependencies),
		SubAnswers:   collectAnswers(n.Children),
		Extras:       m.collectExtras(),
	}

	var raw answerOutput
	if err := m.forward(ctx, "answer", answerSystemPrompt, data, AnswerSchema, &raw); err != nil {
		return "", err
	}
	if strings.TrimSpace(raw.Answer) == "" {
		return "", fmt.Errorf("model returned an empty answer for node %s", n.ID)
	}
	return raw.Answer, nil
}

func collectAnswers(nodes []*question.Node) []qaPair {
	pairs := make([]qaPair, 0, len(nodes))
	for _, n := range nodes {
		answer, ok := n.Answer()
		if !ok {
			continue
		}
		pairs = append(pairs, qaPair{Question: n.Body, Answer: answer})
	}
	return pairs
}

// collectExtras renders the fetched reference entries in sorted key order
// so prompts are stable across runs.
func (m *AnswerModule) collectExtras() []kvPair {
	if m.outputs == nil {
		return nil
	}
	snapshot := m.outputs.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if m.cfg.MaxExtraInfo > 0 && len(keys) > m.cfg.MaxExtraInfo {
		keys = keys[:m.cfg.MaxExtraInfo]
	}

	pairs := make([]kvPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kvPair{Key: k, Value: fmt.Sprint(snapshot[k])})
	}
	return pairs
}
