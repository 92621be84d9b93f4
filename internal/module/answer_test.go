package module

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/abhisek/quandary/internal/llm"
	"github.com/abhisek/quandary/internal/pipeline"
	"github.com/abhisek/quandary/internal/question"
)

func answerJSON(answer string) json.RawMessage {
	out, _ := json.Marshal(map[string]string{"answer": answer, "reasoning": "because"})
	return out
}

func TestAnswerModule_RendersEverythingSolved(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: answerJSON("the moons are Phobos and Deimos")})
	outputs := pipeline.NewOutputMap()
	outputs.Set("orbit-data", "Phobos orbits in 7.7 hours")

	m := NewAnswerModule(mock, NewTemplates(""), outputs, DefaultConfig())

	dep := question.MustNew("how many moons does Mars have?")
	if err := dep.Resolve("two"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	child := question.MustNew("name the moons")
	if err := child.Resolve("Phobos and Deimos"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n := question.MustNew("describe the moons of Mars",
		question.WithContext("astronomy homework"),
		question.WithDependencies(dep),
		question.WithChildren(child),
	)

	answer, err := m.Answer(context.Background(), n)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "the moons are Phobos and Deimos" {
		t.Fatalf("answer = %q", answer)
	}

	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 LLM call, got %d", mock.CallCount())
	}
	prompt := mock.Calls[0].Prompt
	for _, want := range []string{
		"describe the moons of Mars",
		"astronomy homework",
		"how many moons does Mars have?",
		"two",
		"Phobos and Deimos",
		"orbit-data",
		"Phobos orbits in 7.7 hours",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if mock.Calls[0].Schema != AnswerSchema {
		t.Error("request did not carry the answer schema")
	}
}

func TestAnswerModule_SkipsUnsolvedAndEmptySections(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: answerJSON("fine")})
	m := NewAnswerModule(mock, NewTemplates(""), nil, DefaultConfig())

	n := question.MustNew("a standalone question")
	if _, err := m.Answer(context.Background(), n); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	prompt := mock.Calls[0].Prompt
	for _, absent := range []string{"Background:", "prerequisite", "sub-questions", "Reference material"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt contains empty section %q:\n%s", absent, prompt)
		}
	}
}

func TestAnswerModule_RejectsEmptyAnswer(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: answerJSON("   ")})
	m := NewAnswerModule(mock, NewTemplates(""), nil, DefaultConfig())

	if _, err := m.Answer(context.Background(), question.MustNew("anything")); err == nil {
		t.Fatal("blank answer accepted")
	}
}

func TestAnswerModule_LimitsExtraInfo(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: answerJSON("ok")})
	outputs := pipeline.NewOutputMap()
	outputs.Set("a", "1")
	outputs.Set("b", "2")
	outputs.Set("c", "3")

	cfg := DefaultConfig()
	cfg.MaxExtraInfo = 2
	m := NewAnswerModule(mock, NewTemplates(""), outputs, cfg)

	if _, err := m.Answer(context.Background(), question.MustNew("q")); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	prompt := mock.Calls[0].Prompt
	if !strings.Contains(prompt, "- a: 1") || !strings.Contains(prompt, "- b: 2") {
		t.Errorf("prompt missing the first entries in key order:\n%s", prompt)
	}
	if strings.Contains(prompt, "- c: 3") {
		t.Errorf("prompt exceeds the extra-info limit:\n%s", prompt)
	}
}
