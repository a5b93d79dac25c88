package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// MockVectorStore is an in-memory VectorStore for testing.
// Queries are brute force over the configured distance.
type MockVectorStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection

	// Custom behavior hooks (optional). A non-nil error short-circuits the call.
	UpsertFn func(collection string, records []domain.IndexRecord) error
	DeleteFn func(collection, documentID string, fromIndex int) error
	QueryFn  func(collection string, vector []float32, limit int) ([]domain.ScoredRecord, error)
	InfoFn   func(name string) error

	UpsertCalls int
	DeleteCalls int
	QueryCalls  int
}

type memCollection struct {
	cfg     domain.CollectionConfig
	records map[string]domain.IndexRecord
}

// NewMockVectorStore creates an empty store
func NewMockVectorStore() *MockVectorStore {
	return &MockVectorStore{collections: make(map[string]*memCollection)}
}

func (m *MockVectorStore) CreateCollection(ctx context.Context, cfg domain.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[cfg.Name]; ok {
		return fmt.Errorf("%w: collection %s already exists", domain.ErrStore, cfg.Name)
	}
	m.collections[cfg.Name] = &memCollection{cfg: cfg, records: make(map[string]domain.IndexRecord)}
	return nil
}

func (m *MockVectorStore) DeleteCollection(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MockVectorStore) GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	if m.InfoFn != nil {
		if err := m.InfoFn(name); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, name)
	}
	return &domain.CollectionInfo{
		Name:       name,
		PointCount: uint64(len(c.records)),
		VectorSize: c.cfg.VectorSize,
		Distance:   c.cfg.Distance,
	}, nil
}

func (m *MockVectorStore) Upsert(ctx context.Context, collection string, records []domain.IndexRecord) error {
	m.mu.Lock()
	m.UpsertCalls++
	m.mu.Unlock()
	if m.UpsertFn != nil {
		if err := m.UpsertFn(collection, records); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: collection %s", domain.ErrNotFound, collection)
	}
	for _, r := range records {
		if len(r.Vector) != c.cfg.VectorSize {
			return fmt.Errorf("%w: vector size %d, collection expects %d", domain.ErrStore, len(r.Vector), c.cfg.VectorSize)
		}
	}
	for _, r := range records {
		c.records[r.ID] = copyRecord(r)
	}
	return nil
}

func (m *MockVectorStore) DeleteStaleChunks(ctx context.Context, collection, documentID string, fromIndex int) error {
	m.mu.Lock()
	m.DeleteCalls++
	m.mu.Unlock()
	if m.DeleteFn != nil {
		if err := m.DeleteFn(collection, documentID, fromIndex); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: collection %s", domain.ErrNotFound, collection)
	}
	for id, r := range c.records {
		if domain.PayloadString(r.Payload, domain.PayloadDocumentID) == documentID &&
			domain.PayloadInt(r.Payload, domain.PayloadChunkIndex) >= fromIndex {
			delete(c.records, id)
		}
	}
	return nil
}

func (m *MockVectorStore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]domain.ScoredRecord, error) {
	m.mu.Lock()
	m.QueryCalls++
	m.mu.Unlock()
	if m.QueryFn != nil {
		return m.QueryFn(collection, vector, limit)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, collection)
	}

	results := make([]domain.ScoredRecord, 0, len(c.records))
	for _, r := range c.records {
		results = append(results, domain.ScoredRecord{
			ID:      r.ID,
			Score:   score(c.cfg.Distance, vector, r.Vector),
			Payload: copyPayload(r.Payload),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockVectorStore) Close() error {
	return nil
}

// Helper methods for testing

// Records returns a snapshot of a collection's records keyed by id
func (m *MockVectorStore) Records(collection string) map[string]domain.IndexRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.IndexRecord)
	if c, ok := m.collections[collection]; ok {
		for id, r := range c.records {
			out[id] = copyRecord(r)
		}
	}
	return out
}

// DocumentRecords returns the records belonging to one document
func (m *MockVectorStore) DocumentRecords(collection, documentID string) []domain.IndexRecord {
	var out []domain.IndexRecord
	for _, r := range m.Records(collection) {
		if domain.PayloadString(r.Payload, domain.PayloadDocumentID) == documentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return domain.PayloadInt(out[i].Payload, domain.PayloadChunkIndex) <
			domain.PayloadInt(out[j].Payload, domain.PayloadChunkIndex)
	})
	return out
}

func score(d domain.Distance, a, b []float32) float64 {
	var dot, na, nb, l2 float64
	for i := range a {
		if i >= len(b) {
			break
		}
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		l2 += (x - y) * (x - y)
	}
	switch d {
	case domain.DistanceDot:
		return dot
	case domain.DistanceEuclid:
		return -math.Sqrt(l2)
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}

func copyRecord(r domain.IndexRecord) domain.IndexRecord {
	v := make([]float32, len(r.Vector))
	copy(v, r.Vector)
	return domain.IndexRecord{ID: r.ID, Vector: v, Payload: copyPayload(r.Payload)}
}

func copyPayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
