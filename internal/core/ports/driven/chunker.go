package driven

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// Chunker splits a document body into bounded, overlapping spans.
type Chunker interface {
	// Chunk returns the spans of text in order, each stamped with the final count
	Chunk(documentID, text string) []domain.Chunk

	// MaxChars is the largest span the chunker emits
	MaxChars() int
}
