package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// recordNamespace scopes deterministic record ids.
var recordNamespace = uuid.MustParse("6f2c1b9e-3a47-5d8e-9b0a-51c4e2d7a3f8")

// Payload keys written on every record
const (
	PayloadDocumentID  = "document_id"
	PayloadTitle       = "title"
	PayloadAuthor      = "author"
	PayloadChunkIndex  = "chunk_index"
	PayloadTotalChunks = "total_chunks"
	PayloadText        = "text"
	PayloadCharStart   = "char_start"
	PayloadCharEnd     = "char_end"
)

// IndexRecord is a stored (id, vector, payload) triple.
type IndexRecord struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// RecordID derives the record id for a chunk.
// The same document id and chunk index always yield the same UUID.
func RecordID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(recordNamespace, []byte(documentID+"#"+strconv.Itoa(chunkIndex))).String()
}

// NewIndexRecord builds the record for a chunk of doc.
// Document metadata is copied verbatim; the chunk keys win on collision.
func NewIndexRecord(doc *SourceDocument, chunk Chunk, vector []float32) IndexRecord {
	payload := make(map[string]any, len(doc.Metadata)+8)
	for k, v := range doc.Metadata {
		payload[k] = v
	}
	payload[PayloadDocumentID] = chunk.DocumentID
	payload[PayloadTitle] = doc.Title
	payload[PayloadAuthor] = doc.Author
	payload[PayloadChunkIndex] = chunk.ChunkIndex
	payload[PayloadTotalChunks] = chunk.TotalChunks
	payload[PayloadText] = chunk.Text
	payload[PayloadCharStart] = chunk.CharStart
	payload[PayloadCharEnd] = chunk.CharEnd

	return IndexRecord{
		ID:      RecordID(chunk.DocumentID, chunk.ChunkIndex),
		Vector:  vector,
		Payload: payload,
	}
}
