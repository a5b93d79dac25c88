package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.VectorStore = (*VectorStore)(nil)

// VectorStore implements driven.VectorStore on pgvector.
// Search is an exact scan per collection.
type VectorStore struct {
	db     *DB
	logger *slog.Logger

	mu        sync.RWMutex
	distances map[string]domain.Distance
}

// NewVectorStore creates a VectorStore on an initialised schema.
func NewVectorStore(db *DB, logger *slog.Logger) *VectorStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{
		db:        db,
		logger:    logger,
		distances: make(map[string]domain.Distance),
	}
}

// CreateCollection registers a collection.
func (s *VectorStore) CreateCollection(ctx context.Context, cfg domain.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rag_collections (name, vector_size, distance) VALUES ($1, $2, $3)`,
		cfg.Name, cfg.VectorSize, string(cfg.Distance),
	)
	if err != nil {
		return mapError(err, "create collection "+cfg.Name)
	}

	s.setDistance(cfg.Name, cfg.Distance)
	s.logger.Info("pgvector collection created", "collection", cfg.Name, "vector_size", cfg.VectorSize)
	return nil
}

// DeleteCollection drops a collection and its records. Missing collections are ignored.
func (s *VectorStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.distances, name)
	s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM rag_collections WHERE name = $1`, name); err != nil {
		return mapError(err, "delete collection "+name)
	}
	return nil
}

// GetCollectionInfo reads collection parameters and record count.
func (s *VectorStore) GetCollectionInfo(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	query := `
		SELECT c.vector_size, c.distance,
			(SELECT COUNT(*) FROM rag_records r WHERE r.collection = c.name)
		FROM rag_collections c
		WHERE c.name = $1
	`

	var (
		info     = domain.CollectionInfo{Name: name}
		distance string
		count    int64
	)
	err := s.db.QueryRowContext(ctx, query, name).Scan(&info.VectorSize, &distance, &count)
	if err != nil {
		return nil, mapError(err, "get collection "+name)
	}

	info.Distance = domain.Distance(distance)
	info.PointCount = uint64(count)
	s.setDistance(name, info.Distance)
	return &info, nil
}

// Upsert writes records in one transaction.
func (s *VectorStore) Upsert(ctx context.Context, collection string, records []domain.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}

	info, err := s.GetCollectionInfo(ctx, collection)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		if len(r.Vector) != info.VectorSize {
			return fmt.Errorf("%w: record %s has %d dimensions, collection %s expects %d",
				domain.ErrStore, r.ID, len(r.Vector), collection, info.VectorSize)
		}
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("%w: record %s: %w", domain.ErrValidation, r.ID, err)
		}
		rows = append(rows, []any{
			collection,
			r.ID,
			domain.PayloadString(r.Payload, domain.PayloadDocumentID),
			domain.PayloadInt(r.Payload, domain.PayloadChunkIndex),
			pgvector.NewVector(r.Vector),
			payload,
		})
	}

	err = s.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO rag_records (collection, id, document_id, chunk_index, embedding, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (collection, id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				chunk_index = EXCLUDED.chunk_index,
				embedding = EXCLUDED.embedding,
				payload = EXCLUDED.payload,
				updated_at = NOW()
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, args := range rows {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapError(err, fmt.Sprintf("upsert %d records", len(records)))
	}
	return nil
}

// DeleteStaleChunks deletes records of documentID with chunk_index >= fromIndex.
func (s *VectorStore) DeleteStaleChunks(ctx context.Context, collection, documentID string, fromIndex int) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM rag_records WHERE collection = $1 AND document_id = $2 AND chunk_index >= $3`,
		collection, documentID, fromIndex,
	)
	if err != nil {
		return mapError(err, "delete stale chunks of "+documentID)
	}
	return nil
}

// Query returns the nearest records, highest score first.
func (s *VectorStore) Query(ctx context.Context, collection string, vector []float32, limit int) ([]domain.ScoredRecord, error) {
	distance, err := s.distanceOf(ctx, collection)
	if err != nil {
		return nil, err
	}

	op := distanceOperator(distance)
	query := fmt.Sprintf(`
		SELECT id, embedding %[1]s $2 AS distance, payload
		FROM rag_records
		WHERE collection = $1
		ORDER BY embedding %[1]s $2, id
		LIMIT $3
	`, op)

	rows, err := s.db.QueryContext(ctx, query, collection, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, mapError(err, "search "+collection)
	}
	defer rows.Close()

	var results []domain.ScoredRecord
	for rows.Next() {
		var (
			rec     domain.ScoredRecord
			d       float64
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &d, &payload); err != nil {
			return nil, mapError(err, "scan search result")
		}
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("%w: decode payload of %s: %w", domain.ErrStore, rec.ID, err)
		}
		rec.Score = scoreFromDistance(distance, d)
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "search "+collection)
	}
	return results, nil
}

// Close is a no-op; the DB is owned by the caller.
func (s *VectorStore) Close() error {
	return nil
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

// distanceOperator picks the pgvector operator for a metric.
func distanceOperator(d domain.Distance) string {
	switch d {
	case domain.DistanceDot:
		return "<#>" // negative inner product
	case domain.DistanceEuclid:
		return "<->"
	default:
		return "<=>"
	}
}

// scoreFromDistance orients a pgvector distance so higher is better.
func scoreFromDistance(d domain.Distance, v float64) float64 {
	switch d {
	case domain.DistanceDot, domain.DistanceEuclid:
		return -v
	default:
		return 1 - v
	}
}

func mapError(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, op)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		// foreign key violation: collection row is gone
		return fmt.Errorf("%w: %s: collection does not exist", domain.ErrNotFound, op)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrStore, op, err)
}
