// Package ports defines the boundaries between the use cases and the outside
// world. Use cases depend on these interfaces; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for a single query text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds many texts in one call, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel produces completions for an ordered list of messages.
type ChatModel interface {
	// Generate returns the full completion text.
	Generate(ctx context.Context, messages []entities.ChatMessage) (string, error)

	// GenerateStream emits completion fragments as they arrive. The channel is
	// closed after a token with Done or Error set.
	GenerateStream(ctx context.Context, messages []entities.ChatMessage) (<-chan StreamToken, error)
}

// StreamToken is a single fragment of a streaming completion.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// VectorIndex persists chunk embeddings and answers similarity queries.
type VectorIndex interface {
	// Add stores chunks with their embeddings and returns one identifier per
	// chunk in input order. The index is persisted before Add returns.
	Add(ctx context.Context, chunks []entities.Chunk) ([]string, error)

	// Search returns at most topK chunks ordered by descending similarity.
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)

	// Delete removes the given entries. It fails without removing anything
	// when an identifier is unknown.
	Delete(ctx context.Context, ids []string) error

	// Contains returns the identifiers from ids that are stored, in input order.
	Contains(ctx context.Context, ids []string) ([]string, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	Close() error
}

// IndexOpener loads a persisted VectorIndex or creates an empty one.
type IndexOpener interface {
	// Open reports created=true when no persisted index existed.
	Open(ctx context.Context) (index VectorIndex, created bool, err error)
}

// DocumentStore holds the raw bytes of uploaded documents, one file per name.
type DocumentStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Read(ctx context.Context, name string) ([]byte, error)
	// Remove reports whether a file existed.
	Remove(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// IDMapping persists filename to index-identifier associations.
type IDMapping interface {
	Load(ctx context.Context) (map[string][]string, error)
	Save(ctx context.Context, mapping map[string][]string) error
	// Name is the storage filename of the mapping inside the document store.
	Name() string
}

// DocumentLoader turns document bytes into records.
type DocumentLoader interface {
	Load(ctx context.Context, name string, data []byte) ([]entities.Record, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// TextSplitter splits records into chunks.
type TextSplitter interface {
	Split(ctx context.Context, document string, records []entities.Record) ([]entities.Chunk, error)
}

// Locker serialises index and mapping writes across processes.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
