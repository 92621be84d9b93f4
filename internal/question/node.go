package question

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Node is a single unit of work in a question graph. Two relations connect
// nodes: Dependencies (this node's answer needs theirs first) and Children
// (this node decomposes into sub-questions). Both are shared references into
// one graph, never ownership.
type Node struct {
	// ID uniquely identifies the node within a run.
	ID string

	// Body is the question text.
	Body string

	// Context carries auxiliary information alongside the question.
	// The scheduler never inspects it; modules may render it into prompts.
	Context string

	// Dependencies are nodes whose answers must exist before this node
	// can be dispatched.
	Dependencies []*Node

	// Children are sub-questions this node decomposes into. A node with
	// children is not dispatched until every child is solved.
	Children []*Node

	// Parent is the node whose decomposition produced this one.
	// Nil for the root. Used only for depth computation.
	Parent *Node

	mu     sync.Mutex
	answer string
	solved bool
}

// Option configures a Node at construction time.
type Option func(*Node)

// WithDependencies sets the node's dependency list. The slice is copied so
// callers cannot share one backing array across nodes.
func WithDependencies(deps ...*Node) Option {
	return func(n *Node) {
		n.Dependencies = append([]*Node(nil), deps...)
	}
}

// WithChildren sets the node's children and points each child's Parent back
// at the node.
func WithChildren(children ...*Node) Option {
	return func(n *Node) {
		n.Children = append([]*Node(nil), children...)
		for _, c := range n.Children {
			c.Parent = n
		}
	}
}

// WithContext attaches auxiliary context to the node.
func WithContext(context string) Option {
	return func(n *Node) {
		n.Context = context
	}
}

// WithID overrides the generated node ID. Graph file loading uses this so
// nodes keep their declared names.
func WithID(id string) Option {
	return func(n *Node) {
		n.ID = id
	}
}

// New constructs a Node. Every node gets its own freshly allocated
// dependency and child slices.
func New(body string, opts ...Option) (*Node, error) {
	if body == "" {
		return nil, fmt.Errorf("question body must not be empty")
	}
	n := &Node{
		ID:           uuid.NewString(),
		Body:         body,
		Dependencies: []*Node{},
		Children:     []*Node{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// MustNew is New for statically known-good bodies. It panics on error and
// exists for tests and example graphs.
func MustNew(body string, opts ...Option) *Node {
	n, err := New(body, opts...)
	if err != nil {
		panic(err)
	}
	return n
}

// IsSolved reports whether an answer has been set.
func (n *Node) IsSolved() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.solved
}

// Answer returns the node's answer and whether one has been set.
func (n *Node) Answer() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.answer, n.solved
}

// Resolve sets the node's answer. Solving is monotonic: the first call wins
// and any later call is rejected.
func (n *Node) Resolve(answer string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.solved {
		return fmt.Errorf("node %s already solved", n.ID)
	}
	n.answer = answer
	n.solved = true
	return nil
}

// AddChild appends a child and keeps parent/children mutually consistent.
func (n *Node) AddChild(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// AddDependency appends a dependency edge.
func (n *Node) AddDependency(dep *Node) {
	n.Dependencies = append(n.Dependencies, dep)
}

// Depth returns the distance to the root by walking Parent references.
// The root has depth 1. O(depth) per call.
func (n *Node) Depth() int {
	depth := 1
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		depth++
	}
	return depth
}

// String renders the node with its relations, for logs and debugging.
func (n *Node) String() string {
	answer, solved := n.Answer()
	s := fmt.Sprintf("question %s: %s", n.ID, n.Body)
	if solved {
		s += fmt.Sprintf("\n  answer: %s", answer)
	}
	for _, d := range n.Dependencies {
		s += fmt.Sprintf("\n  dep: %s", d.Body)
	}
	for _, c := range n.Children {
		s += fmt.Sprintf("\n  child: %s", c.Body)
	}
	if n.Parent != nil {
		s += fmt.Sprintf("\n  parent: %s", n.Parent.Body)
	}
	return s
}
