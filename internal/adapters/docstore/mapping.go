package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// JSONMapping stores the filename to index-id mapping as a JSON object.
// Writes go through a temporary file and a rename.
type JSONMapping struct {
	fs   afero.Fs
	dir  string
	name string
}

func NewJSONMapping(fsys afero.Fs, dir, name string) *JSONMapping {
	return &JSONMapping{fs: fsys, dir: dir, name: name}
}

func (m *JSONMapping) Name() string { return m.name }

// Load returns an empty mapping when the file does not exist yet.
func (m *JSONMapping) Load(context.Context) (map[string][]string, error) {
	data, err := afero.ReadFile(m.fs, filepath.Join(m.dir, m.name))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading mapping: %w", err)
	}
	out := map[string][]string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding mapping: %w", err)
	}
	return out, nil
}

func (m *JSONMapping) Save(_ context.Context, mapping map[string][]string) error {
	if mapping == nil {
		mapping = map[string][]string{}
	}
	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}
	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating mapping directory: %w", err)
	}
	final := filepath.Join(m.dir, m.name)
	tmp := final + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing mapping: %w", err)
	}
	if err := m.fs.Rename(tmp, final); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("committing mapping: %w", err)
	}
	return nil
}
