package question

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// graphDoc is the on-disk YAML shape of a question graph.
type graphDoc struct {
	Root  string    `yaml:"root"`
	Nodes []nodeDoc `yaml:"nodes"`
}

type nodeDoc struct {
	ID       string   `yaml:"id"`
	Question string   `yaml:"question"`
	Context  string   `yaml:"context"`
	Answer   *string  `yaml:"answer"`
	Deps     []string `yaml:"deps"`
	Children []string `yaml:"children"`
}

// Load reads a YAML graph document from path and returns the wired root
// node. See LoadBytes for the validation performed.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	root, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// LoadBytes parses a YAML graph document. Every node must have a unique id
// and a non-empty question; deps and children must reference declared ids.
// Nodes carrying an answer are treated as solved out of band. The wired
// graph is passed through Validate before being returned.
func LoadBytes(data []byte) (*Node, error) {
	var doc graphDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("graph declares no nodes")
	}

	byID := make(map[string]*Node, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		if nd.ID == "" {
			return nil, fmt.Errorf("node %q is missing an id", nd.Question)
		}
		if _, dup := byID[nd.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q", nd.ID)
		}
		n, err := New(nd.Question, WithID(nd.ID), WithContext(nd.Context))
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", nd.ID, err)
		}
		if nd.Answer != nil {
			if err := n.Resolve(*nd.Answer); err != nil {
				return nil, fmt.Errorf("node %q: %w", nd.ID, err)
			}
		}
		byID[nd.ID] = n
	}

	for _, nd := range doc.Nodes {
		n := byID[nd.ID]
		for _, depID := range nd.Deps {
			dep, ok := byID[depID]
			if !ok {
				return nil, fmt.Errorf("node %q depends on unknown node %q", nd.ID, depID)
			}
			n.AddDependency(dep)
		}
		for _, childID := range nd.Children {
			child, ok := byID[childID]
			if !ok {
				return nil, fmt.Errorf("node %q lists unknown child %q", nd.ID, childID)
			}
			n.AddChild(child)
		}
	}

	rootID := doc.Root
	if rootID == "" {
		rootID = doc.Nodes[0].ID
	}
	root, ok := byID[rootID]
	if !ok {
		return nil, fmt.Errorf("root %q is not a declared node", rootID)
	}

	if err := Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}
