// Package postprocessors turns document bodies into indexable spans.
package postprocessors

import (
	"fmt"
	"unicode"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// maxBreakWindow caps how far back from a hard cut the chunker looks for a boundary.
const maxBreakWindow = 200

// ChunkConfig configures the chunker behavior.
// Sizes are in characters (runes).
type ChunkConfig struct {
	// MaxChars is the maximum characters per chunk
	MaxChars int `toml:"max_chars"`

	// OverlapChars is the character overlap between consecutive chunks
	OverlapChars int `toml:"overlap_chars"`
}

// DefaultChunkConfig sizes chunks for a 512-token embedding model.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:     1500,
		OverlapChars: 200,
	}
}

// Validate requires 0 < OverlapChars < MaxChars.
func (c ChunkConfig) Validate() error {
	if c.MaxChars <= 0 {
		return fmt.Errorf("%w: max chunk size must be positive, got %d", domain.ErrConfig, c.MaxChars)
	}
	if c.OverlapChars <= 0 || c.OverlapChars >= c.MaxChars {
		return fmt.Errorf("%w: overlap must be in (0, %d), got %d", domain.ErrConfig, c.MaxChars, c.OverlapChars)
	}
	return nil
}

// breakWindow is how many characters before a hard cut are searched for a boundary.
func (c ChunkConfig) breakWindow() int {
	return min(maxBreakWindow, c.MaxChars/4)
}

// Chunker splits content into overlapping, boundary-aware chunks.
// It is pure and safe for concurrent use.
type Chunker struct {
	config ChunkConfig
}

// Verify interface compliance
var _ driven.Chunker = (*Chunker)(nil)

// NewChunker creates a chunker, rejecting invalid configs.
func NewChunker(config ChunkConfig) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: config}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() ChunkConfig {
	return c.config
}

// MaxChars returns the largest chunk the chunker emits.
func (c *Chunker) MaxChars() int {
	return c.config.MaxChars
}

// Chunk splits text into ordered spans covering it.
// An empty text yields no chunks. Every chunk carries the final TotalChunks.
func (c *Chunker) Chunk(documentID, text string) []domain.Chunk {
	runes := []rune(text)
	spans := c.splitContent(runes)

	chunks := make([]domain.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = domain.Chunk{
			DocumentID:  documentID,
			ChunkIndex:  i,
			TotalChunks: len(spans),
			Text:        string(runes[s[0]:s[1]]),
			CharStart:   s[0],
			CharEnd:     s[1],
		}
	}
	return chunks
}

// splitContent returns [start, end) spans over content.
func (c *Chunker) splitContent(content []rune) [][2]int {
	n := len(content)
	if n == 0 {
		return nil
	}
	if n <= c.config.MaxChars {
		return [][2]int{{0, n}}
	}

	var spans [][2]int
	start := 0

	for {
		end := min(start+c.config.MaxChars, n)

		// Only interior cuts move to a boundary; the last chunk runs to the end
		if end < n {
			end = c.findBreakPoint(content, start, end)
		}

		spans = append(spans, [2]int{start, end})

		if end >= n {
			break
		}

		// Move start with overlap, ensuring we always advance
		nextStart := end - c.config.OverlapChars
		if nextStart <= start {
			nextStart = start + 1
		}
		start = nextStart
	}

	return spans
}

// findBreakPoint moves a hard cut at maxEnd back to the nearest boundary inside the window.
// Preference: paragraph break, sentence end, whitespace. The result is always > start.
func (c *Chunker) findBreakPoint(content []rune, start, maxEnd int) int {
	lo := maxEnd - c.config.breakWindow()
	if lo <= start {
		lo = start + 1
	}

	// Paragraph boundary (double newline), cut after it
	for i := maxEnd - 2; i >= lo; i-- {
		if content[i] == '\n' && content[i+1] == '\n' {
			return i + 2
		}
	}

	// Sentence terminator followed by whitespace, cut after the whitespace
	for i := maxEnd - 2; i >= lo; i-- {
		if isSentenceEnd(content[i]) && unicode.IsSpace(content[i+1]) {
			return i + 2
		}
	}

	// Word boundary
	for i := maxEnd - 1; i >= lo; i-- {
		if unicode.IsSpace(content[i]) {
			return i + 1
		}
	}

	// No good break point found, use maxEnd
	return maxEnd
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
