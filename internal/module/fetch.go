package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abhisek/quandary/internal/pipeline"
)

// FileFetcher loads reference files into the shared output map so the
// answering unit can cite them. Each entry maps a key to a path on disk;
// the file is read once per run.
type FileFetcher struct {
	entries map[string]string
	out     *pipeline.OutputMap
}

// NewFileFetcher builds a fetcher from "key=path" specs. A bare path is
// keyed by its base name without extension.
func NewFileFetcher(specs []string) (*FileFetcher, error) {
	entries := make(map[string]string, len(specs))
	for _, spec := range specs {
		key, path, found := strings.Cut(spec, "=")
		if !found {
			path = spec
			base := filepath.Base(path)
			key = strings.TrimSuffix(base, filepath.Ext(base))
		}
		if key == "" || path == "" {
			return nil, fmt.Errorf("malformed extra-info spec %q (want key=path)", spec)
		}
		entries[key] = path
	}
	return &FileFetcher{entries: entries}, nil
}

func (f *FileFetcher) Name() string { return "files" }

func (f *FileFetcher) Connect(out *pipeline.OutputMap) { f.out = out }

// Run reads every configured file into the output map. A missing file
// fails the fetcher but never the run.
func (f *FileFetcher) Run(ctx context.Context) error {
	for key, path := range f.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		f.out.Set(key, strings.TrimSpace(string(data)))
	}
	return nil
}
