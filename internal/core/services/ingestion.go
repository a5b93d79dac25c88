package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.IngestionService = (*IngestionPipeline)(nil)

// IngestionPipeline indexes documents into one collection.
// Each document goes through:
//  1. Validate
//  2. Chunk
//  3. Embed chunks in batches
//  4. Upsert all records
//  5. Delete records past the new chunk count
//
// Steps 3-5 are retried together with exponential backoff on transient failures.
// A failed document is recorded in the report and the rest of the batch continues.
type IngestionPipeline struct {
	store    driven.VectorStore
	embedder driven.EmbeddingService
	chunker  driven.Chunker
	lock     driven.DistributedLock

	collection     string
	distance       domain.Distance
	concurrency    int
	batchSize      int
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	callTimeout    time.Duration
	lockTTL        time.Duration

	logger *slog.Logger
}

// IngestionPipelineConfig holds dependencies for IngestionPipeline.
type IngestionPipelineConfig struct {
	Store    driven.VectorStore
	Embedder driven.EmbeddingService
	Chunker  driven.Chunker
	Lock     driven.DistributedLock // optional

	Collection     string
	Distance       domain.Distance
	Concurrency    int
	BatchSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration // per embed/store call, zero for none
	LockTTL        time.Duration

	Logger *slog.Logger
}

// DefaultIngestionPipelineConfig returns sensible defaults without collaborators.
func DefaultIngestionPipelineConfig() IngestionPipelineConfig {
	return IngestionPipelineConfig{
		Distance:       domain.DistanceCosine,
		Concurrency:    4,
		BatchSize:      32,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		CallTimeout:    60 * time.Second,
		LockTTL:        5 * time.Minute,
	}
}

// NewIngestionPipeline creates a new ingestion pipeline.
// It fails with domain.ErrConfig when a collaborator is missing or the chunk size
// exceeds what the embedding model accepts.
func NewIngestionPipeline(cfg IngestionPipelineConfig) (*IngestionPipeline, error) {
	if cfg.Store == nil || cfg.Embedder == nil || cfg.Chunker == nil {
		return nil, fmt.Errorf("%w: ingestion requires a store, an embedder and a chunker", domain.ErrConfig)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrConfig)
	}
	if limit := cfg.Embedder.MaxInputChars(); limit > 0 && cfg.Chunker.MaxChars() > limit {
		return nil, fmt.Errorf("%w: chunk size %d exceeds embedding input limit %d of %s",
			domain.ErrConfig, cfg.Chunker.MaxChars(), limit, cfg.Embedder.Model())
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries must not be negative", domain.ErrConfig)
	}

	defaults := DefaultIngestionPipelineConfig()
	if cfg.Distance == "" {
		cfg.Distance = defaults.Distance
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(defaults.MaxBackoff, cfg.InitialBackoff)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaults.LockTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestionPipeline{
		store:          cfg.Store,
		embedder:       cfg.Embedder,
		chunker:        cfg.Chunker,
		lock:           cfg.Lock,
		collection:     cfg.Collection,
		distance:       cfg.Distance,
		concurrency:    cfg.Concurrency,
		batchSize:      cfg.BatchSize,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		callTimeout:    cfg.CallTimeout,
		lockTTL:        cfg.LockTTL,
		logger:         logger,
	}, nil
}

// EnsureCollection creates the collection with the embedder's dimensionality if it is missing.
// With recreate, any existing collection is dropped first.
func (p *IngestionPipeline) EnsureCollection(ctx context.Context, recreate bool) (*domain.CollectionInfo, error) {
	if recreate {
		p.logger.Info("recreating collection", "collection", p.collection)
		if err := p.store.DeleteCollection(ctx, p.collection); err != nil {
			return nil, fmt.Errorf("delete collection: %w", err)
		}
	}

	info, err := p.store.GetCollectionInfo(ctx, p.collection)
	switch {
	case err == nil:
		if err := p.checkDimensions(info); err != nil {
			return nil, err
		}
		return info, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get collection: %w", err)
	}

	cfg := domain.CollectionConfig{
		Name:       p.collection,
		VectorSize: p.embedder.Dimensions(),
		Distance:   p.distance,
	}
	if err := p.store.CreateCollection(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	p.logger.Info("created collection",
		"collection", cfg.Name,
		"vector_size", cfg.VectorSize,
		"distance", cfg.Distance,
	)

	return p.store.GetCollectionInfo(ctx, p.collection)
}

// Ingest indexes docs concurrently.
// Cancellation is honored between documents: a document that has started runs to completion,
// the rest are counted as skipped, and ctx.Err() is returned alongside the report.
func (p *IngestionPipeline) Ingest(ctx context.Context, docs []*domain.SourceDocument) (*domain.IngestionReport, error) {
	startTime := time.Now()
	report := &domain.IngestionReport{Collection: p.collection}

	p.logger.Info("starting ingestion", "collection", p.collection, "documents", len(docs))

	release, err := p.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	info, err := p.store.GetCollectionInfo(ctx, p.collection)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	if err := p.checkDimensions(info); err != nil {
		return nil, err
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]bool, len(docs))
		g    errgroup.Group
	)
	g.SetLimit(p.concurrency)

	for i, doc := range docs {
		if ctx.Err() != nil {
			mu.Lock()
			report.DocumentsSkipped += len(docs) - i
			mu.Unlock()
			break
		}

		// Reject repeats up front so two workers never write the same ids
		if doc != nil && doc.ID != "" {
			if seen[doc.ID] {
				p.recordFailure(&mu, report, doc.ID, fmt.Errorf("%w: duplicate document id in batch", domain.ErrValidation), 0)
				continue
			}
			seen[doc.ID] = true
		}

		g.Go(func() error {
			// Another slot may have opened after cancellation
			if ctx.Err() != nil {
				mu.Lock()
				report.DocumentsSkipped++
				mu.Unlock()
				return nil
			}

			chunks, attempts, err := p.processDocument(context.WithoutCancel(ctx), doc)
			if err != nil {
				p.recordFailure(&mu, report, documentID(doc), err, attempts)
				return nil
			}

			mu.Lock()
			report.DocumentsProcessed++
			report.ChunksCreated += chunks
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(startTime)
	report.Cancelled = ctx.Err() != nil

	p.logger.Info("ingestion complete",
		"collection", p.collection,
		"processed", report.DocumentsProcessed,
		"chunks", report.ChunksCreated,
		"failed", report.Failed(),
		"skipped", report.DocumentsSkipped,
		"duration", report.Duration,
	)

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// processDocument indexes one document and returns its chunk count and the attempts used.
func (p *IngestionPipeline) processDocument(ctx context.Context, doc *domain.SourceDocument) (int, int, error) {
	if err := validateDocument(doc); err != nil {
		return 0, 0, err
	}

	chunks := p.chunker.Chunk(doc.ID, doc.Body)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialBackoff
	b.MaxInterval = p.maxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.maxRetries)), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := p.indexChunks(ctx, doc, chunks)
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		p.logger.Warn("retrying document",
			"document_id", doc.ID,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return 0, attempts, err
	}

	p.logger.Debug("document indexed", "document_id", doc.ID, "chunk_count", len(chunks))
	return len(chunks), attempts, nil
}

// indexChunks embeds, upserts and trims one document's records as a single unit.
func (p *IngestionPipeline) indexChunks(ctx context.Context, doc *domain.SourceDocument, chunks []domain.Chunk) error {
	records := make([]domain.IndexRecord, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.batchSize {
		batch := chunks[start:min(start+p.batchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := p.embed(ctx, texts)
		if err != nil {
			return err
		}
		for i, c := range batch {
			records = append(records, domain.NewIndexRecord(doc, c, vectors[i]))
		}
	}

	if err := p.withTimeout(ctx, func(ctx context.Context) error {
		return p.store.Upsert(ctx, p.collection, records)
	}); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}

	if err := p.withTimeout(ctx, func(ctx context.Context) error {
		return p.store.DeleteStaleChunks(ctx, p.collection, doc.ID, len(chunks))
	}); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}
	return nil
}

func (p *IngestionPipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := p.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = p.embedder.Embed(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(vectors), len(texts))
	}
	dims := p.embedder.Dimensions()
	for _, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector has %d dimensions, expected %d", domain.ErrConfig, len(v), dims)
		}
	}
	return vectors, nil
}

func (p *IngestionPipeline) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if p.callTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	return fn(ctx)
}

func (p *IngestionPipeline) checkDimensions(info *domain.CollectionInfo) error {
	if dims := p.embedder.Dimensions(); info.VectorSize != 0 && info.VectorSize != dims {
		return fmt.Errorf("%w: collection %s has vector size %d, embedding model %s produces %d",
			domain.ErrConfig, p.collection, info.VectorSize, p.embedder.Model(), dims)
	}
	return nil
}

// acquireLock takes the per-collection ingestion lock and keeps it alive until released.
func (p *IngestionPipeline) acquireLock(ctx context.Context) (func(), error) {
	if p.lock == nil {
		return func() {}, nil
	}

	name := "ingest:" + p.collection
	acquired, err := p.lock.Acquire(ctx, name, p.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire ingestion lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", domain.ErrIngestionInProgress, p.collection)
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(p.lockTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.lock.Extend(context.WithoutCancel(ctx), name, p.lockTTL); err != nil {
					p.logger.Warn("failed to extend ingestion lock", "lock", name, "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		if err := p.lock.Release(context.WithoutCancel(ctx), name); err != nil {
			p.logger.Warn("failed to release ingestion lock", "lock", name, "error", err)
		}
	}, nil
}

func (p *IngestionPipeline) recordFailure(mu *sync.Mutex, report *domain.IngestionReport, docID string, err error, attempts int) {
	p.logger.Error("document failed", "document_id", docID, "attempts", attempts, "error", err)

	mu.Lock()
	defer mu.Unlock()
	report.Failures = append(report.Failures, domain.DocumentFailure{
		DocumentID: docID,
		Error:      err.Error(),
		Attempts:   attempts,
	})
}

func validateDocument(doc *domain.SourceDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: nil document", domain.ErrValidation)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(doc.Body) == "" {
		return fmt.Errorf("%w: document %s has no content", domain.ErrValidation, doc.ID)
	}
	return nil
}

func documentID(doc *domain.SourceDocument) string {
	if doc == nil {
		return ""
	}
	return doc.ID
}
