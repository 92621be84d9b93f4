package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// RequestRecord is one completed Generate call, ready for persistence.
type RequestRecord struct {
	Provider     string
	Model        string
	Purpose      string
	RunID        string
	LatencyMs    int64
	InputTokens  int
	OutputTokens int
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// Recorder persists request records. The store package provides the
// SQLite-backed implementation.
type Recorder interface {
	RecordLLMRequest(ctx context.Context, rec RequestRecord) error
}

// RecordingProvider is a decorator that hands every Generate call to a
// Recorder, success or failure alike.
type RecordingProvider struct {
	inner    Provider
	recorder Recorder
}

// WithRecording wraps a Provider with request recording.
func WithRecording(p Provider, rec Recorder) Provider {
	return &RecordingProvider{inner: p, recorder: rec}
}

func (l *RecordingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	resp, err := l.inner.Generate(ctx, req)

	rec := RequestRecord{
		Provider:    l.inner.ModelID(),
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		RunID:       RunIDFrom(ctx),
		LatencyMs:   time.Since(start).Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		rec.InputTokens = resp.Usage.InputTokens
		rec.OutputTokens = resp.Usage.OutputTokens
		rec.Model = resp.Model
		rec.ResponseBody = string(resp.Content)
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	}

	// Record the call but never fail the request over a recording error.
	if recErr := l.recorder.RecordLLMRequest(ctx, rec); recErr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to record LLM request: %v\n", recErr)
	}

	return resp, err
}

func (l *RecordingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	b.WriteString("[prompt]\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n")

	if req.Schema != nil {
		if schemaDef, err := json.Marshal(req.Schema.Definition); err == nil {
			b.WriteString(fmt.Sprintf("\n[schema: %s]\n", req.Schema.Name))
			b.Write(schemaDef)
			b.WriteString("\n")
		}
	}

	return b.String()
}
