package domain

// SourceDocument is a long-form document handed to ingestion.
// The core only reads it.
type SourceDocument struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Author   string         `json:"author"`
	Body     string         `json:"body"`
	Metadata map[string]any `json:"metadata,omitempty"` // url, pub_date, category, description...
}

// Chunk is a bounded span of a document body.
// CharStart and CharEnd are a half-open range counted in characters (runes), not bytes.
type Chunk struct {
	DocumentID  string `json:"document_id"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Text        string `json:"text"`
	CharStart   int    `json:"char_start"`
	CharEnd     int    `json:"char_end"`
}

// Len returns the span length in characters.
func (c Chunk) Len() int {
	return c.CharEnd - c.CharStart
}
