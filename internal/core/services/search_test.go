package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven/mocks"
)

// SpyEmbeddingService is a testify mock of driven.EmbeddingService
type SpyEmbeddingService struct {
	mock.Mock
}

func (m *SpyEmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *SpyEmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *SpyEmbeddingService) Dimensions() int                       { return 2 }
func (m *SpyEmbeddingService) Model() string                         { return "spy" }
func (m *SpyEmbeddingService) MaxInputChars() int                    { return 0 }
func (m *SpyEmbeddingService) HealthCheck(ctx context.Context) error { return nil }
func (m *SpyEmbeddingService) Close() error                          { return nil }

func newTestRetriever(t *testing.T, store *mocks.MockVectorStore, embedder *mocks.MockEmbeddingService) *retriever {
	t.Helper()
	svc, err := NewRetriever(RetrieverConfig{Store: store, Embedder: embedder, Collection: testCollection})
	require.NoError(t, err)
	return svc.(*retriever)
}

func TestNewRetriever_RequiresCollaborators(t *testing.T) {
	_, err := NewRetriever(RetrieverConfig{Collection: testCollection})
	assert.ErrorIs(t, err, domain.ErrConfig)

	_, err = NewRetriever(RetrieverConfig{Store: mocks.NewMockVectorStore(), Embedder: mocks.NewMockEmbeddingService()})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestSearch_InvalidLimitMakesNoCalls(t *testing.T) {
	spy := &SpyEmbeddingService{}
	store := mocks.NewMockVectorStore()
	svc, err := NewRetriever(RetrieverConfig{Store: store, Embedder: spy, Collection: testCollection})
	require.NoError(t, err)

	for _, limit := range []int{0, -1} {
		results, err := svc.Search(context.Background(), "what is the outlook for rates?", limit)
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Nil(t, results)
	}

	spy.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
	assert.Zero(t, store.QueryCalls)
}

func TestSearch_EmptyQuery(t *testing.T) {
	spy := &SpyEmbeddingService{}
	svc, err := NewRetriever(RetrieverConfig{Store: mocks.NewMockVectorStore(), Embedder: spy, Collection: testCollection})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "  ", 5)
	assert.ErrorIs(t, err, domain.ErrValidation)
	spy.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
}

func TestSearch_SelfQueryRanksFirst(t *testing.T) {
	f := newIngestionFixture(t, nil)
	docs := []*domain.SourceDocument{speech("a", 12), speech("b", 6)}
	docs[1].Body = "Labor markets have cooled considerably. Payroll growth slowed in the spring. " +
		"Wage growth is easing toward a pace consistent with the target."

	_, err := f.pipeline.Ingest(context.Background(), docs)
	require.NoError(t, err)

	svc := newTestRetriever(t, f.store, f.embedder)
	stored := f.store.DocumentRecords(testCollection, "a")[1]
	query := domain.PayloadString(stored.Payload, domain.PayloadText)

	results, err := svc.Search(context.Background(), query, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, stored.ID, top.ID)
	assert.Equal(t, "a", top.DocumentID)
	assert.Equal(t, 1, top.ChunkIndex)
	assert.Equal(t, domain.PayloadInt(stored.Payload, domain.PayloadTotalChunks), top.TotalChunks)
	assert.Equal(t, "Speech a", top.Title)
	assert.Equal(t, "Governor a", top.Author)
	assert.Equal(t, "https://example.org/a", top.URL)
	assert.InDelta(t, 1.0, top.Score, 1e-6)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_RespectsLimit(t *testing.T) {
	f := newIngestionFixture(t, nil)
	_, err := f.pipeline.Ingest(context.Background(), []*domain.SourceDocument{speech("a", 30)})
	require.NoError(t, err)

	svc := newTestRetriever(t, f.store, f.embedder)
	results, err := svc.Search(context.Background(), "inflation", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearch_MaxLimitCaps(t *testing.T) {
	f := newIngestionFixture(t, nil)
	_, err := f.pipeline.Ingest(context.Background(), []*domain.SourceDocument{speech("a", 30)})
	require.NoError(t, err)

	svc, err := NewRetriever(RetrieverConfig{Store: f.store, Embedder: f.embedder, Collection: testCollection, MaxLimit: 3})
	require.NoError(t, err)

	results, err := svc.Search(context.Background(), "inflation", 50)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_MissingMetadataDefaultsToEmpty(t *testing.T) {
	store := mocks.NewMockVectorStore()
	store.QueryFn = func(collection string, vector []float32, limit int) ([]domain.ScoredRecord, error) {
		return []domain.ScoredRecord{
			{ID: "1", Score: 0.4, Payload: map[string]any{"text": "bare chunk"}},
			{ID: "2", Score: 0.9, Payload: map[string]any{"text": "rich chunk", "title": "T", "pub_date": "2024-05-01"}},
			{ID: "2", Score: 0.9, Payload: map[string]any{"text": "duplicate"}},
		}, nil
	}
	svc := newTestRetriever(t, store, mocks.NewMockEmbeddingService())

	results, err := svc.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "2", results[0].ID, "results are sorted by score")
	assert.Equal(t, "2024-05-01", results[0].PubDate)
	bare := results[1]
	assert.Equal(t, "bare chunk", bare.Text)
	assert.Equal(t, "", bare.Title)
	assert.Equal(t, "", bare.Author)
	assert.Equal(t, "", bare.URL)
	assert.Equal(t, "", bare.PubDate)
	assert.Equal(t, "", bare.Category)
	assert.Equal(t, "", bare.Description)
}

func TestSearch_NoMatchesIsEmptyNotError(t *testing.T) {
	f := newIngestionFixture(t, nil)
	svc := newTestRetriever(t, f.store, f.embedder)

	results, err := svc.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	f := newIngestionFixture(t, nil)
	f.embedder.SetFailNext(true)
	svc := newTestRetriever(t, f.store, f.embedder)

	_, err := svc.Search(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, domain.ErrSearch)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Zero(t, f.store.QueryCalls, "no store call after a failed embedding")
}

func TestSearch_StoreFailureNotRetried(t *testing.T) {
	store := mocks.NewMockVectorStore()
	store.QueryFn = func(collection string, vector []float32, limit int) ([]domain.ScoredRecord, error) {
		return nil, fmt.Errorf("%w: unavailable", domain.ErrStore)
	}
	svc := newTestRetriever(t, store, mocks.NewMockEmbeddingService())

	_, err := svc.Search(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, domain.ErrSearch)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Equal(t, 1, store.QueryCalls)
}

func TestSearch_MissingCollection(t *testing.T) {
	svc := newTestRetriever(t, mocks.NewMockVectorStore(), mocks.NewMockEmbeddingService())

	_, err := svc.Search(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, domain.ErrSearch)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSearch_QueryTimeout(t *testing.T) {
	spy := &SpyEmbeddingService{}
	spy.On("EmbedQuery", mock.Anything, "slow").Return(nil, context.DeadlineExceeded).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok, "query context should carry a deadline")
	})
	svc, err := NewRetriever(RetrieverConfig{
		Store:        mocks.NewMockVectorStore(),
		Embedder:     spy,
		Collection:   testCollection,
		QueryTimeout: time.Second,
	})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "slow", 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	spy.AssertExpectations(t)
}

func TestVerifyCollection(t *testing.T) {
	f := newIngestionFixture(t, nil)
	_, err := f.pipeline.Ingest(context.Background(), []*domain.SourceDocument{speech("a", 10)})
	require.NoError(t, err)

	svc := newTestRetriever(t, f.store, f.embedder)
	health := svc.VerifyCollection(context.Background())

	assert.True(t, health.Exists)
	assert.Equal(t, testCollection, health.Name)
	assert.Equal(t, uint64(len(f.store.Records(testCollection))), health.PointCount)
	assert.Equal(t, 16, health.VectorSize)
	assert.Equal(t, domain.DistanceCosine, health.Distance)
	assert.Empty(t, health.Error)
}

func TestVerifyCollection_NeverCreated(t *testing.T) {
	svc := newTestRetriever(t, mocks.NewMockVectorStore(), mocks.NewMockEmbeddingService())

	health := svc.VerifyCollection(context.Background())
	assert.False(t, health.Exists)
	assert.NotEmpty(t, health.Error)
}

func TestVerifyCollection_Unreachable(t *testing.T) {
	store := mocks.NewMockVectorStore()
	store.InfoFn = func(name string) error {
		return fmt.Errorf("%w: dial tcp: connection refused", domain.ErrStore)
	}
	svc := newTestRetriever(t, store, mocks.NewMockEmbeddingService())

	health := svc.VerifyCollection(context.Background())
	assert.False(t, health.Exists)
	assert.Contains(t, health.Error, "connection refused")
}
