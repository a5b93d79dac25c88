package domain

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultSearchLimit is the number of results returned when the caller does not ask for a count
const DefaultSearchLimit = 5

// ScoredRecord is a raw nearest-neighbor match from the vector store.
// Score is normalized so that higher is more similar regardless of distance metric.
type ScoredRecord struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// QueryResult is a retrieval hit with its citation metadata
type QueryResult struct {
	ID          string         `json:"id"`
	Score       float64        `json:"score"`
	Text        string         `json:"text"`
	DocumentID  string         `json:"document_id"`
	ChunkIndex  int            `json:"chunk_index"`
	TotalChunks int            `json:"total_chunks"`
	Title       string         `json:"title"`
	Author      string         `json:"author"`
	URL         string         `json:"url"`
	PubDate     string         `json:"pub_date"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewQueryResult reshapes a raw match. Missing or oddly typed fields become zero values.
func NewQueryResult(rec ScoredRecord) QueryResult {
	p := rec.Payload
	return QueryResult{
		ID:          rec.ID,
		Score:       rec.Score,
		Text:        PayloadString(p, PayloadText),
		DocumentID:  PayloadString(p, PayloadDocumentID),
		ChunkIndex:  PayloadInt(p, PayloadChunkIndex),
		TotalChunks: PayloadInt(p, PayloadTotalChunks),
		Title:       PayloadString(p, PayloadTitle),
		Author:      PayloadString(p, PayloadAuthor),
		URL:         PayloadString(p, "url"),
		PubDate:     PayloadString(p, "pub_date"),
		Category:    PayloadString(p, "category"),
		Description: PayloadString(p, "description"),
		Metadata:    p,
	}
}

// PayloadString reads key as a string, returning "" when absent.
// Non-string scalars are formatted.
func PayloadString(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// PayloadInt reads key as an int, returning 0 when absent or not numeric.
func PayloadInt(p map[string]any, key string) int {
	switch t := p[key].(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case float32:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
