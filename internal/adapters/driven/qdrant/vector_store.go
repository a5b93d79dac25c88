// Package qdrant stores index records in Qdrant over gRPC.
package qdrant

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*VectorStore)(nil)

// Config holds Qdrant connection settings
type Config struct {
	Host   string       `toml:"host"`
	Port   int          `toml:"port"` // gRPC port, 6334 by default
	APIKey string       `toml:"api_key"`
	UseTLS bool         `toml:"use_tls"`
	Logger *slog.Logger `toml:"-"`
}

// VectorStore implements driven.VectorStore on Qdrant collections.
type VectorStore struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	logger      *slog.Logger

	// distance per collection, used to orient scores
	mu        sync.RWMutex
	distances map[string]domain.Distance
}

// NewVectorStore connects to Qdrant. The connection is established lazily on first call.
func NewVectorStore(cfg Config) (*VectorStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}

	target := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to Qdrant at %s: %w", domain.ErrConfig, target, err)
	}

	return NewVectorStoreFromConn(conn, cfg.Logger), nil
}

// NewVectorStoreFromConn wraps an existing gRPC connection. Close closes it.
func NewVectorStoreFromConn(conn *grpc.ClientConn, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		logger:      logger,
		distances:   make(map[string]domain.Distance),
	}
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// CreateCollection creates a collection and the payload indexes used for stale-chunk deletion.
func (s *VectorStore) CreateCollection(ctx context.Context, cfg domain.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err := s.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: cfg.Name,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(cfg.VectorSize),
					Distance: toQdrantDistance(cfg.Distance),
				},
			},
		},
	})
	if err != nil {
		return mapError(err, "create collection "+cfg.Name)
	}

	for field, typ := range map[string]qdrantclient.FieldType{
		domain.PayloadDocumentID: qdrantclient.FieldType_FieldTypeKeyword,
		domain.PayloadChunkIndex: qdrantclient.FieldType_FieldTypeInteger,
	} {
		_, err := s.points.CreateFieldIndex(ctx, &qdrantclient.CreateFieldIndexCollection{
			CollectionName: cfg.Name,
			Wait:           ptr(true),
			FieldName:      field,
			FieldType:      typ.Enum(),
		})
		if err != nil {
			return mapError(err, "create payload index "+field)
		}
	}

	s.setDistance(cfg.Name, cfg.Distance)
	s.logger.Info("qdrant collection created", "collection", cfg.Name, "vector_size", cfg.VectorSize)
	return nil
}

// DeleteCollection drops a collection. Missing collections are ignored.
func (s *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.collections.Delete(ctx, &qdrantclient.DeleteCollection{CollectionName: name})
	s.mu.Lock()
	delete(s.distances, name)
	s.mu.Unlock()
	if err != nil {
		mapped := mapError(err, "delete collection "+name)
		if errors.Is(mapped, domain.ErrNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

// GetCollectionInfo reads point count and vector params.
func (s *VectorStore) GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	resp, err := s.collections.Get(ctx, &qdrantclient.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return nil, mapError(err, "get collection "+name)
	}

	result := resp.GetResult()
	params := result.GetConfig().GetParams().GetVectorsConfig().GetParams()
	info := &domain.CollectionInfo{
		Name:       name,
		PointCount: result.GetPointsCount(),
		VectorSize: int(params.GetSize()),
		Distance:   fromQdrantDistance(params.GetDistance()),
	}
	s.setDistance(name, info.Distance)
	return info, nil
}

// Upsert writes records and waits for them to be applied.
func (s *VectorStore) Upsert(ctx context.Context, collection string, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrantclient.PointStruct, 0, len(records))
	for _, r := range records {
		payload, err := toPayload(r.Payload)
		if err != nil {
			return fmt.Errorf("%w: record %s: %w", domain.ErrValidation, r.ID, err)
		}
		points = append(points, &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: r.Vector},
				},
			},
			Payload: payload,
		})
	}

	_, err := s.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: collection,
		Wait:           ptr(true),
		Points:         points,
	})
	if err != nil {
		return mapError(err, fmt.Sprintf("upsert %d points", len(points)))
	}
	return nil
}

// DeleteStaleChunks deletes points of documentID with chunk_index >= fromIndex.
func (s *VectorStore) DeleteStaleChunks(ctx context.Context, collection, documentID string, fromIndex int) error {
	_, err := s.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: collection,
		Wait:           ptr(true),
		Points: &qdrantclient.PointsSelector{
			PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{
				Filter: staleChunkFilter(documentID, fromIndex),
			},
		},
	})
	if err != nil {
		return mapError(err, "delete stale chunks of "+documentID)
	}
	return nil
}

// Query searches by vector. Euclid distances are negated so higher is always better.
func (s *VectorStore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]domain.ScoredRecord, error) {
	distance, err := s.distanceOf(ctx, collection)
	if err != nil {
		return nil, err
	}

	resp, err := s.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, mapError(err, "search "+collection)
	}

	results := make([]domain.ScoredRecord, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		score := float64(point.GetScore())
		if distance == domain.DistanceEuclid {
			score = -score
		}
		results = append(results, domain.ScoredRecord{
			ID:      pointID(point.GetId()),
			Score:   score,
			Payload: fromPayload(point.GetPayload()),
		})
	}
	return results, nil
}

// Close closes the gRPC connection
func (s *VectorStore) Close() error {
	return s.conn.Close()
}

func (s *VectorStore) distanceOf(ctx context.Context, collection string) (domain.Distance, error) {
	s.mu.RLock()
	d, ok := s.distances[collection]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}
	info, err := s.GetCollectionInfo(ctx, collection)
	if err != nil {
		return "", err
	}
	return info.Distance, nil
}

func (s *VectorStore) setDistance(collection string, d domain.Distance) {
	s.mu.Lock()
	s.distances[collection] = d
	s.mu.Unlock()
}

func staleChunkFilter(documentID string, fromIndex int) *qdrantclient.Filter {
	return &qdrantclient.Filter{
		Must: []*qdrantclient.Condition{
			{
				ConditionOneOf: &qdrantclient.Condition_Field{
					Field: &qdrantclient.FieldCondition{
						Key: domain.PayloadDocumentID,
						Match: &qdrantclient.Match{
							MatchValue: &qdrantclient.Match_Keyword{Keyword: documentID},
						},
					},
				},
			},
			{
				ConditionOneOf: &qdrantclient.Condition_Field{
					Field: &qdrantclient.FieldCondition{
						Key:   domain.PayloadChunkIndex,
						Range: &qdrantclient.Range{Gte: ptr(float64(fromIndex))},
					},
				},
			},
		},
	}
}

// mapError converts a gRPC status into the domain taxonomy.
func mapError(err error, op string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %s: %s", domain.ErrNotFound, op, status.Convert(err).Message())
	case codes.Canceled:
		return fmt.Errorf("%s: %w", op, context.Canceled)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
	}
}

func toQdrantDistance(d domain.Distance) qdrantclient.Distance {
	switch d {
	case domain.DistanceDot:
		return qdrantclient.Distance_Dot
	case domain.DistanceEuclid:
		return qdrantclient.Distance_Euclid
	default:
		return qdrantclient.Distance_Cosine
	}
}

func fromQdrantDistance(d qdrantclient.Distance) domain.Distance {
	switch d {
	case qdrantclient.Distance_Dot:
		return domain.DistanceDot
	case qdrantclient.Distance_Euclid:
		return domain.DistanceEuclid
	default:
		return domain.DistanceCosine
	}
}

func pointID(id *qdrantclient.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func ptr[T any](v T) *T {
	return &v
}
