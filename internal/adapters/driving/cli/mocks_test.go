package cli

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

type mockIngestionService struct {
	report     *domain.IngestionReport
	err        error
	ensureErr  error
	recreated  bool
	ingested   int
	ensureCall int
}

func (m *mockIngestionService) Ingest(_ context.Context, docs []*domain.SourceDocument) (*domain.IngestionReport, error) {
	m.ingested = len(docs)
	if m.report != nil {
		return m.report, m.err
	}
	return &domain.IngestionReport{
		Collection:         "kb",
		DocumentsProcessed: len(docs),
		ChunksCreated:      len(docs) * 2,
		Duration:           1500 * time.Millisecond,
	}, m.err
}

func (m *mockIngestionService) EnsureCollection(_ context.Context, recreate bool) (*domain.CollectionInfo, error) {
	m.ensureCall++
	m.recreated = recreate
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	return &domain.CollectionInfo{Name: "kb", VectorSize: 768, Distance: domain.DistanceCosine}, nil
}

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

type mockSource struct {
	docs []*domain.SourceDocument
	err  error
}

func (m *mockSource) Load(_ context.Context) ([]*domain.SourceDocument, error) {
	return m.docs, m.err
}

var errMockLoad = errors.New("file not found")

type testServices struct {
	ingestion *mockIngestionService
	search    *mockSearchService
	source    *mockSource
	path      string
}

// setupTestServices injects mock services and restores global state on cleanup.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		ingestion: &mockIngestionService{},
		search: &mockSearchService{
			results: []domain.QueryResult{{
				Score: 0.87, Text: "Inflation remains elevated.", DocumentID: "speech-1",
				ChunkIndex: 0, TotalChunks: 3, Title: "Economic Outlook", Author: "Jerome Powell",
				PubDate: "2024-05-01", URL: "https://example.org/s1",
			}},
			health: domain.CollectionHealth{Exists: true, Name: "kb", PointCount: 42, VectorSize: 768, Distance: domain.DistanceCosine},
		},
		source: &mockSource{docs: []*domain.SourceDocument{{ID: "speech-1", Body: "text"}, {ID: "speech-2", Body: "more"}}},
	}

	old := services
	services = &Services{
		Ingestion: ts.ingestion,
		Search:    ts.search,
		Source: func(path string) driven.DocumentSource {
			ts.path = path
			return ts.source
		},
	}
	return ts, func() {
		services = old
		searchLimit = domain.DefaultSearchLimit
		searchJSON = false
		ingestRecreate = false
		ingestVerifyQuery = ""
		setupRecreate = false
		rootCmd.SetArgs(nil)
	}
}
