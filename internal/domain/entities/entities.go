// Package entities contains the core domain objects of the chatbot.
// They carry no knowledge of storage, transport or model providers.
package entities

import (
	"path/filepath"
	"strings"
)

// Format is a document format accepted for indexing.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// FormatOf returns the indexable format of a filename based on its extension.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type uploads of this format are expected to carry.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatJSON:
		return "application/json"
	default:
		return ""
	}
}

// Record is one logical unit produced by a loader, e.g. a CSV row.
type Record struct {
	Content  string
	Metadata map[string]any
}

// Chunk is a piece of a record sized for embedding. ID is assigned by the
// vector index when the chunk is stored.
type Chunk struct {
	ID         string
	DocumentID string // source filename
	Content    string
	Index      int // position within the document
	Metadata   map[string]any
	Embedding  []float32
}

// QueryResult is a chunk returned by similarity search.
type QueryResult struct {
	Chunk     Chunk
	Score     float64
	SourceDoc string
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn sent to a chat model.
type ChatMessage struct {
	Role    Role
	Content string
}

// Provider identifies a model backend.
type Provider string

const (
	ProviderNebius Provider = "nebius"
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
)

// Valid reports whether p names a supported backend.
func (p Provider) Valid() bool {
	switch p {
	case ProviderNebius, ProviderOpenAI, ProviderOllama:
		return true
	}
	return false
}
