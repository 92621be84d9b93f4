package llm

import "context"

type contextKey string

const (
	purposeKey contextKey = "llm_purpose"
	runIDKey   contextKey = "llm_run_id"
)

// WithPurpose attaches a purpose label ("answer", "decompose") to the
// context for request recording.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom extracts the purpose label from the context.
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithRunID tags the context with the resolution run the request belongs
// to, so recorded requests can be grouped per run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFrom extracts the run ID from the context, or "" if untagged.
func RunIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}
