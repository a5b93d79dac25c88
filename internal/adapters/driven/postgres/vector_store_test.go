package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestDistanceOperator(t *testing.T) {
	assert.Equal(t, "<=>", distanceOperator(domain.DistanceCosine))
	assert.Equal(t, "<#>", distanceOperator(domain.DistanceDot))
	assert.Equal(t, "<->", distanceOperator(domain.DistanceEuclid))
}

func TestScoreFromDistance(t *testing.T) {
	assert.InDelta(t, 0.75, scoreFromDistance(domain.DistanceCosine, 0.25), 1e-9)
	assert.InDelta(t, 3.0, scoreFromDistance(domain.DistanceDot, -3.0), 1e-9)
	assert.InDelta(t, -2.0, scoreFromDistance(domain.DistanceEuclid, 2.0), 1e-9)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError(sql.ErrNoRows, "op"), domain.ErrNotFound)
	assert.ErrorIs(t, mapError(&pq.Error{Code: "23503"}, "op"), domain.ErrNotFound)
	assert.ErrorIs(t, mapError(errors.New("connection refused"), "op"), domain.ErrStore)
	assert.ErrorIs(t, mapError(context.Canceled, "op"), context.Canceled)
}

func TestHashLockName(t *testing.T) {
	assert.Equal(t, hashLockName("ingest:kb"), hashLockName("ingest:kb"))
	assert.NotEqual(t, hashLockName("ingest:kb"), hashLockName("ingest:other"))
}

// testDB connects to TEST_DATABASE_URL; the server needs the vector extension.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRecord(doc string, idx, total int, vec []float32) domain.IndexRecord {
	return domain.NewIndexRecord(
		&domain.SourceDocument{ID: doc, Title: "T " + doc, Metadata: map[string]any{"url": "u/" + doc}},
		domain.Chunk{DocumentID: doc, ChunkIndex: idx, TotalChunks: total, Text: "text"},
		vec,
	)
}

func TestVectorStore_Integration(t *testing.T) {
	db := testDB(t)
	store := NewVectorStore(db, nil)
	ctx := context.Background()
	const name = "sercha_rag_test"

	require.NoError(t, store.DeleteCollection(ctx, name))
	t.Cleanup(func() { _ = store.DeleteCollection(context.Background(), name) })

	_, err := store.GetCollectionInfo(ctx, name)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.CreateCollection(ctx, domain.CollectionConfig{Name: name, VectorSize: 2, Distance: domain.DistanceCosine}))

	require.NoError(t, store.Upsert(ctx, name, []domain.IndexRecord{
		testRecord("a", 0, 3, []float32{1, 0}),
		testRecord("a", 1, 3, []float32{0.8, 0.2}),
		testRecord("a", 2, 3, []float32{0, 1}),
		testRecord("b", 0, 1, []float32{0.6, 0.4}),
	}))
	// re-upsert is idempotent
	require.NoError(t, store.Upsert(ctx, name, []domain.IndexRecord{testRecord("a", 0, 3, []float32{1, 0})}))

	info, err := store.GetCollectionInfo(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), info.PointCount)
	assert.Equal(t, 2, info.VectorSize)

	results, err := store.Query(ctx, name, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.RecordID("a", 0), results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "u/a", results[0].Payload["url"])
	assert.Equal(t, 3, domain.PayloadInt(results[0].Payload, domain.PayloadTotalChunks))

	err = store.Upsert(ctx, name, []domain.IndexRecord{testRecord("c", 0, 1, []float32{1, 2, 3})})
	assert.ErrorIs(t, err, domain.ErrStore)

	require.NoError(t, store.DeleteStaleChunks(ctx, name, "a", 1))
	info, err = store.GetCollectionInfo(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.PointCount)
}

func TestAdvisoryLock_Integration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	first := NewAdvisoryLock(db)
	second := NewAdvisoryLock(db)

	ok, err := first.Acquire(ctx, "ingest:kb", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx, "ingest:kb", 0)
	require.NoError(t, err)
	assert.False(t, ok, "lock is held by another session")

	require.NoError(t, first.Release(ctx, "ingest:kb"))

	ok, err = second.Acquire(ctx, "ingest:kb", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Release(ctx, "ingest:kb"))
	require.NoError(t, second.Release(ctx, "ingest:kb"), "releasing twice is not an error")
}
