// Package jsonl loads source documents from JSON Lines files.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentSource = (*Source)(nil)

// maxLineBytes bounds one record; speech transcripts run to a few hundred KB.
const maxLineBytes = 16 << 20

// Fields with a dedicated place on SourceDocument. Everything else is metadata.
const (
	fieldID      = "id"
	fieldURL     = "url"
	fieldTitle   = "title"
	fieldAuthor  = "author"
	fieldContent = "content"
)

// Source reads one document per line:
//
//	{"id": "...", "title": "...", "author": "...", "content": "...", "url": "...", ...}
//
// The id falls back to url when absent.
type Source struct {
	path string
	open func() (io.ReadCloser, error)
}

// NewSource reads documents from the file at path.
func NewSource(path string) *Source {
	return &Source{
		path: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// NewReaderSource reads documents from r. It can be loaded once.
func NewReaderSource(name string, r io.Reader) *Source {
	return &Source{
		path: name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}

// Load parses every non-blank line. A malformed line fails the load with its line number.
func (s *Source) Load(ctx context.Context) ([]*domain.SourceDocument, error) {
	f, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var docs []*domain.SourceDocument
	line := 0
	for scanner.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		doc, err := parseDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", domain.ErrValidation, s.path, line, err)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s line %d: %w", s.path, line+1, err)
	}
	return docs, nil
}

func parseDocument(raw []byte) (*domain.SourceDocument, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	doc := &domain.SourceDocument{
		ID:       scalarString(fields[fieldID]),
		Title:    scalarString(fields[fieldTitle]),
		Author:   scalarString(fields[fieldAuthor]),
		Body:     scalarString(fields[fieldContent]),
		Metadata: make(map[string]any, len(fields)),
	}
	// Records without id or url are kept; ingestion reports them per document
	if doc.ID == "" {
		doc.ID = scalarString(fields[fieldURL])
	}

	for k, v := range fields {
		switch k {
		case fieldID, fieldTitle, fieldAuthor, fieldContent:
		default:
			doc.Metadata[k] = v
		}
	}
	return doc, nil
}

// scalarString renders strings and numbers; anything else is "".
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
