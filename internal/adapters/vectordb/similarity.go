// Package vectordb provides vector index adapters.
package vectordb

import (
	"errors"
	"math"
	"sort"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

var (
	// ErrEntryNotFound is returned by Delete when an identifier is unknown.
	ErrEntryNotFound = errors.New("vectordb: entry not found")
	// ErrDimensionMismatch is returned when a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("vectordb: embedding dimension mismatch")
)

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rank scores chunks against query and keeps the best topK. Ties are broken
// by identifier so results are stable across reloads.
func rank(query []float32, chunks []entities.Chunk, topK int) []entities.QueryResult {
	results := make([]entities.QueryResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, entities.QueryResult{
			Chunk:     c,
			Score:     cosineSimilarity(query, c.Embedding),
			SourceDoc: c.DocumentID,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
