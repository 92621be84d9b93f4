package module

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Templates resolves prompt templates by name. With no directory, the
// embedded defaults are used. With a directory, each template is read
// from <dir>/<name>.tmpl; a missing file is seeded from the embedded
// default first, so users get an editable copy of every prompt they use.
type Templates struct {
	dir string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewTemplates creates a template resolver. dir may be empty.
func NewTemplates(dir string) *Templates {
	return &Templates{
		dir:   dir,
		cache: make(map[string]*template.Template),
	}
}

// Lookup returns the parsed template for name ("answer", "decompose").
func (t *Templates) Lookup(name string) (*template.Template, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tmpl, ok := t.cache[name]; ok {
		return tmpl, nil
	}

	text, err := t.load(name)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	t.cache[name] = tmpl
	return tmpl, nil
}

func (t *Templates) load(name string) (string, error) {
	embedded, err := defaultTemplates.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("unknown template %q", name)
	}
	if t.dir == "" {
		return string(embedded), nil
	}

	path := filepath.Join(t.dir, name+".tmpl")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(t.dir, 0o755); err != nil {
			return "", fmt.Errorf("create template dir: %w", err)
		}
		if err := os.WriteFile(path, embedded, 0o644); err != nil {
			return "", fmt.Errorf("seed template %q: %w", name, err)
		}
		return string(embedded), nil
	}
	if err != nil {
		return "", fmt.Errorf("read template %q: %w", name, err)
	}
	return string(data), nil
}

// render executes a template into a string.
func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
