package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

type mockSearchService struct {
	results   []domain.QueryResult
	err       error
	health    domain.CollectionHealth
	lastQuery string
	lastLimit int
}

func (m *mockSearchService) Search(_ context.Context, query string, limit int) ([]domain.QueryResult, error) {
	m.lastQuery = query
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func (m *mockSearchService) VerifyCollection(_ context.Context) domain.CollectionHealth {
	return m.health
}

func (m *mockSearchService) Collection() string {
	return "kb"
}
