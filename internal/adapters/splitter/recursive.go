// Package splitter chunks records with langchaingo's recursive character splitter.
package splitter

import (
	"context"
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Recursive splits on paragraph, line, word and character boundaries in turn
// until pieces fit ChunkSize runes.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursive(chunkSize, chunkOverlap int) *Recursive {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// Split returns chunks numbered across the whole document. Each chunk keeps
// a copy of its record's metadata.
func (r *Recursive) Split(ctx context.Context, document string, records []entities.Record) ([]entities.Chunk, error) {
	var chunks []entities.Chunk
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parts, err := r.splitter.SplitText(rec.Content)
		if err != nil {
			return nil, fmt.Errorf("splitting %s: %w", document, err)
		}
		for _, p := range parts {
			if p == "" {
				continue
			}
			chunks = append(chunks, entities.Chunk{
				DocumentID: document,
				Content:    p,
				Index:      len(chunks),
				Metadata:   maps.Clone(rec.Metadata),
			})
		}
	}
	return chunks, nil
}
