package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// SearchInput is the input schema for search_knowledge_base.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the user's search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 5)"`
}

// SearchOutput is the output schema for search_knowledge_base.
type SearchOutput struct {
	Results []KnowledgeResult `json:"results"`
	Count   int               `json:"count"`
}

// KnowledgeResult is one retrieved chunk with its source metadata.
type KnowledgeResult struct {
	Content  string            `json:"content"`
	Metadata KnowledgeMetadata `json:"metadata"`
	Score    float64           `json:"score"`
}

// KnowledgeMetadata is the source metadata of a result. Speaker is the document author.
type KnowledgeMetadata struct {
	Title       string `json:"title"`
	Speaker     string `json:"speaker"`
	PubDate     string `json:"pub_date"`
	Category    string `json:"category"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// HealthOutput is the output schema for collection_health.
type HealthOutput struct {
	Exists     bool   `json:"exists"`
	Name       string `json:"name"`
	PointCount uint64 `json:"point_count"`
	VectorSize int    `json:"vector_size"`
	Distance   string `json:"distance,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge_base",
		Description: "Search the knowledge base for passages relevant to a query. Returns chunk text with title, speaker, date, category, url and a relevance score.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "collection_health",
		Description: "Report whether the knowledge base collection exists and how many chunks it holds",
	}, s.handleHealth)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}

	results, err := s.search.Search(ctx, input.Query, limit)
	if err != nil {
		return textResult(true, fmt.Sprintf("Error searching knowledge base: %v", err)), emptyOutput(), nil
	}
	if len(results) == 0 {
		return textResult(false, fmt.Sprintf("No results found for query: '%s'", input.Query)), emptyOutput(), nil
	}

	output := SearchOutput{
		Results: make([]KnowledgeResult, len(results)),
		Count:   len(results),
	}
	for i, r := range results {
		output.Results[i] = KnowledgeResult{
			Content: r.Text,
			Metadata: KnowledgeMetadata{
				Title:       r.Title,
				Speaker:     r.Author,
				PubDate:     r.PubDate,
				Category:    r.Category,
				URL:         r.URL,
				Description: r.Description,
			},
			Score: r.Score,
		}
	}
	return nil, output, nil
}

func (s *Server) handleHealth(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ struct{},
) (*mcp.CallToolResult, HealthOutput, error) {
	h := s.search.VerifyCollection(ctx)
	return nil, HealthOutput{
		Exists:     h.Exists,
		Name:       h.Name,
		PointCount: h.PointCount,
		VectorSize: h.VectorSize,
		Distance:   string(h.Distance),
		Error:      h.Error,
	}, nil
}

// emptyOutput keeps results an array so the output still matches its schema.
func emptyOutput() SearchOutput {
	return SearchOutput{Results: []KnowledgeResult{}}
}

func textResult(isError bool, text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
