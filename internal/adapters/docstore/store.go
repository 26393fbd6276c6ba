// Package docstore keeps uploaded documents and the filename to index-id
// mapping as plain files in one directory.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrInvalidName is returned for names that would escape the directory.
var ErrInvalidName = errors.New("docstore: invalid document name")

// FileStore is a ports.DocumentStore rooted at Dir on an afero filesystem.
type FileStore struct {
	fs  afero.Fs
	dir string
}

func NewFileStore(fsys afero.Fs, dir string) (*FileStore, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating document directory: %w", err)
	}
	return &FileStore{fs: fsys, dir: dir}, nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Save writes data under name, replacing any existing file.
func (s *FileStore) Save(_ context.Context, name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, p, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) Read(_ context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) Remove(_ context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("removing %s: %w", name, err)
	}
	return true, nil
}

// List returns the names of regular files, sorted.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}
