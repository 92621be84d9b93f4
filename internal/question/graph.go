package question

import (
	"fmt"
	"sort"
	"strings"
)

// Collect walks the graph reachable from root over both relations
// (dependencies and children) and returns every node exactly once.
// Order is deterministic: breadth-first from the root, dependencies
// before children at each node.
func Collect(root *Node) []*Node {
	if root == nil {
		return nil
	}
	seen := map[*Node]bool{root: true}
	nodes := []*Node{root}
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		for _, d := range n.Dependencies {
			if !seen[d] {
				seen[d] = true
				nodes = append(nodes, d)
			}
		}
		for _, c := range n.Children {
			if !seen[c] {
				seen[c] = true
				nodes = append(nodes, c)
			}
		}
	}
	return nodes
}

// Dependents builds the reverse index: for every node, the nodes that list
// it as a dependency or child. Completion of a node makes exactly these
// nodes worth re-evaluating.
func Dependents(nodes []*Node) map[*Node][]*Node {
	out := make(map[*Node][]*Node, len(nodes))
	for _, n := range nodes {
		for _, d := range n.Dependencies {
			out[d] = append(out[d], n)
		}
		for _, c := range n.Children {
			out[c] = append(out[c], n)
		}
	}
	return out
}

// Validate checks the graph reachable from root for structural problems:
// duplicate IDs, parent/child inconsistency, and cycles over the union of
// the dependency and child relations. It returns a combined error naming
// every problem found, or nil.
func Validate(root *Node) error {
	if root == nil {
		return fmt.Errorf("nil root question")
	}
	nodes := Collect(root)

	var errs []string

	idSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if idSet[n.ID] {
			errs = append(errs, fmt.Sprintf("duplicate node ID: %q", n.ID))
		}
		idSet[n.ID] = true
	}

	for _, n := range nodes {
		for _, c := range n.Children {
			if c.Parent != n {
				errs = append(errs, fmt.Sprintf("node %q lists child %q whose parent is someone else", n.ID, c.ID))
			}
		}
	}

	if cycle := findCycle(nodes); len(cycle) > 0 {
		errs = append(errs, fmt.Sprintf("cycle detected involving nodes: %s", strings.Join(cycle, ", ")))
	}

	if len(errs) > 0 {
		return fmt.Errorf("question graph validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// TopologicalOrder returns the graph's nodes ordered so that every node
// appears after all of its dependencies and children (Kahn's algorithm over
// the union of both relations). Returns an error when the graph is cyclic.
func TopologicalOrder(root *Node) ([]*Node, error) {
	nodes := Collect(root)

	inDegree := make(map[*Node]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = len(n.Dependencies) + len(n.Children)
	}

	var queue []*Node
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sortByID(queue)

	dependents := Dependents(nodes)

	var order []*Node
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		next := append([]*Node(nil), dependents[n]...)
		sortByID(next)
		for _, d := range next {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) < len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if inDegree[n] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("cannot order cyclic graph, stuck nodes: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

// findCycle runs Kahn's algorithm and returns the IDs of nodes left with
// positive in-degree, which is non-empty exactly when a cycle exists.
func findCycle(nodes []*Node) []string {
	inDegree := make(map[*Node]int, len(nodes))
	dependents := Dependents(nodes)
	for _, n := range nodes {
		inDegree[n] = len(n.Dependencies) + len(n.Children)
	}

	var queue []*Node
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, d := range dependents[n] {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if visited == len(nodes) {
		return nil
	}
	var cycle []string
	for _, n := range nodes {
		if inDegree[n] > 0 {
			cycle = append(cycle, n.ID)
		}
	}
	sort.Strings(cycle)
	return cycle
}

func sortByID(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
}
