package vectordb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// MemoryIndex is a process-local vector index.
type MemoryIndex struct {
	mu        sync.RWMutex
	chunks    map[string]entities.Chunk
	order     []string
	dimension int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[string]entities.Chunk)}
}

func (s *MemoryIndex) Add(_ context.Context, chunks []entities.Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(c.Embedding), dim)
		}
	}
	s.dimension = dim

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		c.ID = uuid.NewString()
		s.chunks[c.ID] = c
		s.order = append(s.order, c.ID)
		ids[i] = c.ID
	}
	return ids, nil
}

func (s *MemoryIndex) Search(_ context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]entities.Chunk, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.chunks[id])
	}
	return rank(embedding, all, topK), nil
}

func (s *MemoryIndex) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids = dedupe(ids)
	for _, id := range ids {
		if _, ok := s.chunks[id]; !ok {
			return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
		}
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		delete(s.chunks, id)
		drop[id] = struct{}{}
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	return nil
}

func (s *MemoryIndex) Contains(_ context.Context, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []string
	for _, id := range dedupe(ids) {
		if _, ok := s.chunks[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (s *MemoryIndex) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *MemoryIndex) Close() error { return nil }

// MemoryOpener hands out one shared MemoryIndex.
type MemoryOpener struct {
	once  sync.Once
	index *MemoryIndex
}

func (o *MemoryOpener) Open(context.Context) (ports.VectorIndex, bool, error) {
	created := false
	o.once.Do(func() {
		o.index = NewMemoryIndex()
		created = true
	})
	return o.index, created, nil
}
