package resolver

import (
	"errors"
	"fmt"

	"github.com/abhisek/quandary/internal/question"
)

// ErrStalled reports that the run could make no further progress: no node
// was ready or in flight while unsolved nodes remained. It indicates a
// malformed graph or an answering failure that left nodes permanently
// blocked.
var ErrStalled = errors.New("resolution stalled: unsolved questions remain but none can become ready")

// MalformedGraphError wraps a structural problem found in the question
// graph before or during a run (dangling reference, duplicate ID, cycle).
type MalformedGraphError struct {
	Err error
}

func (e *MalformedGraphError) Error() string {
	return fmt.Sprintf("malformed question graph: %v", e.Err)
}

func (e *MalformedGraphError) Unwrap() error { return e.Err }

// AnswerError reports that the answering unit permanently failed for a
// node. The run policy is fail-fast: the first AnswerError cancels the run
// and propagates to the caller; the node is never marked solved.
type AnswerError struct {
	Node *question.Node
	Err  error
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answering node %s failed: %v", e.Node.ID, e.Err)
}

func (e *AnswerError) Unwrap() error { return e.Err }
