package usecases

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

// placeholderText seeds a new index so it records the embedding dimension.
const placeholderText = "placeholder"

// VectorStoreManager owns the document directory, the vector index and the
// filename to index-id mapping, and keeps the three consistent.
type VectorStoreManager struct {
	docs     ports.DocumentStore
	mapping  ports.IDMapping
	loader   ports.DocumentLoader
	splitter ports.TextSplitter
	embedder ports.EmbeddingService
	opener   ports.IndexOpener
	locker   ports.Locker

	pruneMapping bool

	writeMu sync.Mutex
	// digests holds the content hash last indexed per name, guarded by writeMu.
	digests map[string][sha256.Size]byte

	initMu sync.Mutex
	index  ports.VectorIndex
}

type ManagerOption func(*VectorStoreManager)

// WithLocker serialises writes with other processes sharing the index.
func WithLocker(l ports.Locker) ManagerOption {
	return func(m *VectorStoreManager) { m.locker = l }
}

// WithMappingPruning drops a document's mapping entry after it is deleted
// from the index. Off by default, which keeps stale entries.
func WithMappingPruning(enabled bool) ManagerOption {
	return func(m *VectorStoreManager) { m.pruneMapping = enabled }
}

func NewVectorStoreManager(
	docs ports.DocumentStore,
	mapping ports.IDMapping,
	loader ports.DocumentLoader,
	splitter ports.TextSplitter,
	embedder ports.EmbeddingService,
	opener ports.IndexOpener,
	opts ...ManagerOption,
) *VectorStoreManager {
	m := &VectorStoreManager{
		docs:     docs,
		mapping:  mapping,
		loader:   loader,
		splitter: splitter,
		embedder: embedder,
		opener:   opener,
		digests:  make(map[string][sha256.Size]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Index loads the persisted index, or creates and persists an empty one.
// It is safe to call repeatedly; later calls return the same handle.
func (m *VectorStoreManager) Index(ctx context.Context) (ports.VectorIndex, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.index != nil {
		return m.index, nil
	}

	idx, created, err := m.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	if created {
		if err := m.seed(ctx, idx); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("initializing vector index: %w", err)
		}
		logger.FromContext(ctx).Info("created empty vector index")
	}
	m.index = idx
	return idx, nil
}

func (m *VectorStoreManager) seed(ctx context.Context, idx ports.VectorIndex) error {
	vec, err := m.embedder.Embed(ctx, placeholderText)
	if err != nil {
		return err
	}
	ids, err := idx.Add(ctx, []entities.Chunk{{Content: placeholderText, Embedding: vec}})
	if err != nil {
		return err
	}
	return idx.Delete(ctx, ids)
}

// Close releases the index handle.
func (m *VectorStoreManager) Close() error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.index == nil {
		return nil
	}
	err := m.index.Close()
	m.index = nil
	return err
}

func (m *VectorStoreManager) withWriteLock(ctx context.Context, fn func() error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.FromContext(ctx).Warn("failed to release index lock", "error", err)
			}
		}()
	}
	return fn()
}

// AddDocument stores data under name, indexes its chunks and records their
// identifiers. Re-adding a name overwrites its mapping entry; earlier index
// entries stay in the index.
func (m *VectorStoreManager) AddDocument(ctx context.Context, name string, data []byte) ([]string, error) {
	if _, ok := entities.FormatOf(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	var ids []string
	err := m.withWriteLock(ctx, func() error {
		if err := m.docs.Save(ctx, name, data); err != nil {
			return err
		}
		var added bool
		var err error
		ids, added, err = m.indexLocked(ctx, name, data)
		if err != nil && !added {
			if _, rmErr := m.docs.Remove(ctx, name); rmErr != nil {
				logger.FromContext(ctx).Warn("failed to remove rejected document", "name", name, "error", rmErr)
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("document indexed", "name", name, "chunks", len(ids))
	return ids, nil
}

// indexLocked runs load, split, embed and add for a stored document, then
// records the ids. added reports whether the index was mutated.
func (m *VectorStoreManager) indexLocked(ctx context.Context, name string, data []byte) (ids []string, added bool, err error) {
	records, err := m.loader.Load(ctx, name, data)
	if err != nil {
		return nil, false, fmt.Errorf("loading %s: %w", name, err)
	}
	if len(records) == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrEmptyDocument, name)
	}

	chunks, err := m.splitter.Split(ctx, name, records)
	if err != nil {
		return nil, false, err
	}
	if len(chunks) == 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrEmptyDocument, name)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, false, fmt.Errorf("embedding %s: %w", name, err)
	}
	if len(vectors) != len(chunks) {
		return nil, false, fmt.Errorf("embedding %s: got %d vectors for %d chunks", name, len(vectors), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	idx, err := m.Index(ctx)
	if err != nil {
		return nil, false, err
	}
	ids, err = idx.Add(ctx, chunks)
	if err != nil {
		return nil, false, fmt.Errorf("adding %s to index: %w", name, err)
	}

	if err := m.recordIDs(ctx, name, ids); err != nil {
		if rbErr := idx.Delete(ctx, ids); rbErr != nil {
			logger.FromContext(ctx).Error("failed to roll back unrecorded entries",
				"name", name, "ids", len(ids), "error", rbErr)
			return nil, true, err
		}
		return nil, false, err
	}
	m.digests[name] = sha256.Sum256(data)
	return ids, true, nil
}

func (m *VectorStoreManager) recordIDs(ctx context.Context, name string, ids []string) error {
	mapping, err := m.mapping.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading id mapping: %w", err)
	}
	mapping[name] = ids
	if err := m.mapping.Save(ctx, mapping); err != nil {
		return fmt.Errorf("saving id mapping: %w", err)
	}
	return nil
}

// ListDocuments returns the stored filenames, excluding the mapping file.
func (m *VectorStoreManager) ListDocuments(ctx context.Context) ([]string, error) {
	names, err := m.docs.List(ctx)
	if err != nil {
		return nil, err
	}
	skip := m.mapping.Name()
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == skip || n == skip+".tmp" {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// DeleteDocument removes the file and its index entries. It returns false
// when the name has no recorded identifiers or the index rejects the delete.
func (m *VectorStoreManager) DeleteDocument(ctx context.Context, name string) (bool, error) {
	log := logger.FromContext(ctx)
	deleted := false
	err := m.withWriteLock(ctx, func() error {
		if _, err := m.docs.Remove(ctx, name); err != nil {
			return err
		}
		mapping, err := m.mapping.Load(ctx)
		if err != nil {
			return err
		}
		ids := mapping[name]
		if len(ids) == 0 {
			return nil
		}
		idx, err := m.Index(ctx)
		if err != nil {
			return err
		}
		if err := idx.Delete(ctx, ids); err != nil {
			log.Warn("index rejected delete", "name", name, "ids", len(ids), "error", err)
			return nil
		}
		deleted = true
		delete(m.digests, name)
		if m.pruneMapping {
			delete(mapping, name)
			return m.mapping.Save(ctx, mapping)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		log.Info("document deleted", "name", name)
	}
	return deleted, nil
}

// IndexExisting indexes a file already present in the document store. Names
// whose recorded entries are all still in the index are skipped and reported
// as not indexed; otherwise the file is indexed and any surviving entries
// from an earlier version are replaced.
func (m *VectorStoreManager) IndexExisting(ctx context.Context, name string) ([]string, bool, error) {
	return m.syncExisting(ctx, name, false)
}

// RefreshDocument re-indexes a stored file after its content changed. The
// previous entries are removed only once the new ones are recorded, so a
// failed refresh leaves the earlier version searchable. A file whose content
// matches what was last indexed is skipped.
func (m *VectorStoreManager) RefreshDocument(ctx context.Context, name string) ([]string, bool, error) {
	return m.syncExisting(ctx, name, true)
}

func (m *VectorStoreManager) syncExisting(ctx context.Context, name string, changed bool) ([]string, bool, error) {
	if _, ok := entities.FormatOf(name); !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	log := logger.FromContext(ctx)
	var ids []string
	err := m.withWriteLock(ctx, func() error {
		mapping, err := m.mapping.Load(ctx)
		if err != nil {
			return err
		}
		idx, err := m.Index(ctx)
		if err != nil {
			return err
		}
		var stale []string
		complete := false
		if recorded := mapping[name]; len(recorded) > 0 {
			if stale, err = idx.Contains(ctx, recorded); err != nil {
				return err
			}
			complete = len(stale) == len(dedupeIDs(recorded))
		}
		if complete && !changed {
			return nil
		}

		data, err := m.docs.Read(ctx, name)
		if err != nil {
			return err
		}
		if complete {
			if digest, ok := m.digests[name]; ok && digest == sha256.Sum256(data) {
				return nil
			}
		}
		if ids, _, err = m.indexLocked(ctx, name, data); err != nil {
			return err
		}
		if len(stale) > 0 {
			if err := idx.Delete(ctx, stale); err != nil {
				log.Warn("failed to drop replaced entries", "name", name, "ids", len(stale), "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if ids == nil {
		return nil, false, nil
	}
	log.Info("document indexed", "name", name, "chunks", len(ids))
	return ids, true, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Reconcile indexes every supported document whose entries are missing from
// the index and returns the names it indexed. Failures are collected, not fatal.
func (m *VectorStoreManager) Reconcile(ctx context.Context) ([]string, error) {
	names, err := m.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	var (
		indexed []string
		errs    []error
	)
	for _, name := range names {
		if _, ok := entities.FormatOf(name); !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		_, ok, err := m.IndexExisting(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if ok {
			indexed = append(indexed, name)
		}
	}
	return indexed, errors.Join(errs...)
}

// SimilaritySearch returns the k chunks closest to query.
func (m *VectorStoreManager) SimilaritySearch(ctx context.Context, query string, k int) ([]entities.QueryResult, error) {
	idx, err := m.Index(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return idx.Search(ctx, vec, k)
}
