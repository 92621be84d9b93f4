package question

import (
	"strings"
	"testing"
)

// diamond builds root -> {a, b} children where b depends on a.
func diamond() (root, a, b *Node) {
	a = MustNew("a", WithID("a"))
	b = MustNew("b", WithID("b"), WithDependencies(a))
	root = MustNew("root", WithID("root"), WithChildren(a, b))
	return root, a, b
}

func TestCollect_VisitsEveryNodeOnce(t *testing.T) {
	root, _, _ := diamond()

	nodes := Collect(root)
	if len(nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(nodes))
	}
	seen := map[*Node]int{}
	for _, n := range nodes {
		seen[n]++
	}
	for n, count := range seen {
		if count != 1 {
			t.Errorf("node %q collected %d times", n.ID, count)
		}
	}
}

func TestDependents_ReverseIndex(t *testing.T) {
	root, a, b := diamond()

	deps := Dependents(Collect(root))

	// a unblocks both b (dependency) and root (child).
	if len(deps[a]) != 2 {
		t.Fatalf("got %d dependents of a, want 2", len(deps[a]))
	}
	if len(deps[b]) != 1 || deps[b][0] != root {
		t.Fatalf("dependents of b = %v, want [root]", deps[b])
	}
}

func TestValidate_AcceptsDAG(t *testing.T) {
	root, _, _ := diamond()
	if err := Validate(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DetectsDependencyCycle(t *testing.T) {
	a := MustNew("a", WithID("a"))
	b := MustNew("b", WithID("b"))
	a.AddDependency(b)
	b.AddDependency(a)
	root := MustNew("root", WithID("root"), WithChildren(a, b))

	err := Validate(root)
	if err == nil {
		t.Fatal("expected cycle error, got nil")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("error does not mention cycle: %v", err)
	}
}

func TestValidate_DetectsSelfDependency(t *testing.T) {
	root := MustNew("root", WithID("root"))
	root.AddDependency(root)

	if err := Validate(root); err == nil {
		t.Fatal("expected cycle error for self-dependency, got nil")
	}
}

func TestValidate_DetectsDuplicateIDs(t *testing.T) {
	a := MustNew("a", WithID("dup"))
	b := MustNew("b", WithID("dup"))
	root := MustNew("root", WithID("root"), WithChildren(a, b))

	err := Validate(root)
	if err == nil {
		t.Fatal("expected duplicate ID error, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("error does not mention duplicates: %v", err)
	}
}

func TestValidate_DetectsParentMismatch(t *testing.T) {
	child := MustNew("child", WithID("child"))
	root := MustNew("root", WithID("root"))
	// Bypass AddChild to break the invariant.
	root.Children = append(root.Children, child)

	if err := Validate(root); err == nil {
		t.Fatal("expected parent mismatch error, got nil")
	}
}

func TestTopologicalOrder_RespectsBothRelations(t *testing.T) {
	root, a, b := diamond()

	order, err := TopologicalOrder(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("got %d nodes, want 3", len(order))
	}

	pos := map[*Node]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos[a] > pos[b] {
		t.Error("dependency a ordered after its dependent b")
	}
	if pos[root] != 2 {
		t.Errorf("root ordered at %d, want last", pos[root])
	}
}

func TestTopologicalOrder_FailsOnCycle(t *testing.T) {
	a := MustNew("a", WithID("a"))
	b := MustNew("b", WithID("b"))
	a.AddDependency(b)
	b.AddDependency(a)
	root := MustNew("root", WithID("root"), WithChildren(a, b))

	if _, err := TopologicalOrder(root); err == nil {
		t.Fatal("expected error for cyclic graph, got nil")
	}
}
