// Package loader turns CSV and JSON documents into records.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

// ErrUnsupportedExtension is returned by MultiLoader for unknown extensions.
var ErrUnsupportedExtension = errors.New("loader: unsupported extension")

// CSVLoader produces one record per data row. Each record lists the row as
// "column: value" lines.
type CSVLoader struct{}

func NewCSVLoader() *CSVLoader { return &CSVLoader{} }

func (l *CSVLoader) Load(ctx context.Context, name string, data []byte) ([]entities.Record, error) {
	docs, err := documentloaders.NewCSV(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing csv %s: %w", name, err)
	}
	records := make([]entities.Record, 0, len(docs))
	for _, d := range docs {
		meta := map[string]any{"source": name}
		for k, v := range d.Metadata {
			meta[k] = v
		}
		records = append(records, entities.Record{Content: d.PageContent, Metadata: meta})
	}
	return records, nil
}

func (l *CSVLoader) SupportedExtensions() []string { return []string{".csv"} }

// JSONLoader produces a single record holding the compacted document.
// A blank file yields no records.
type JSONLoader struct{}

func NewJSONLoader() *JSONLoader { return &JSONLoader{} }

func (l *JSONLoader) Load(_ context.Context, name string, data []byte) ([]entities.Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("parsing json %s: %w", name, err)
	}
	return []entities.Record{{
		Content:  buf.String(),
		Metadata: map[string]any{"source": name},
	}}, nil
}

func (l *JSONLoader) SupportedExtensions() []string { return []string{".json"} }

type formatLoader interface {
	Load(ctx context.Context, name string, data []byte) ([]entities.Record, error)
	SupportedExtensions() []string
}

// MultiLoader dispatches on the file extension.
type MultiLoader struct {
	loaders map[string]formatLoader
}

func NewMultiLoader() *MultiLoader {
	m := &MultiLoader{loaders: map[string]formatLoader{}}
	for _, l := range []formatLoader{NewCSVLoader(), NewJSONLoader()} {
		for _, ext := range l.SupportedExtensions() {
			m.loaders[ext] = l
		}
	}
	return m
}

func (m *MultiLoader) Load(ctx context.Context, name string, data []byte) ([]entities.Record, error) {
	ext := strings.ToLower(filepath.Ext(name))
	l, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return l.Load(ctx, name, data)
}

func (m *MultiLoader) SupportedExtensions() []string {
	return []string{".csv", ".json"}
}
