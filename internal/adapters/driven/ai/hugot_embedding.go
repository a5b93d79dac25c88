package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure HugotEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*HugotEmbedding)(nil)

const (
	hugotDefaultModel    = "sentence-transformers/all-MiniLM-L6-v2"
	hugotDefaultModelDir = "./models"
	hugotDefaultMaxChars = 2000 // 256 word pieces
)

// HugotEmbedding runs a sentence-transformers ONNX model in process.
type HugotEmbedding struct {
	session       *hugot.Session
	run           func([]string) ([][]float32, error)
	model         string
	dimensions    int
	maxInputChars int
	batchSize     int

	mu sync.Mutex // the Go backend pipeline is not safe for concurrent use
}

// NewHugotEmbedding downloads the model if needed and starts a Go-backend session.
func NewHugotEmbedding(settings domain.EmbeddingSettings) (*HugotEmbedding, error) {
	model := settings.Model
	if model == "" {
		model = hugotDefaultModel
	}
	modelDir := settings.ModelDir
	if modelDir == "" {
		modelDir = hugotDefaultModelDir
	}

	modelPath, err := prepareHugotModel(model, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create hugot session: %w", domain.ErrConfig, err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "sercha-rag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("%w: failed to create embedding pipeline: %w (cleanup error: %v)", domain.ErrConfig, err, destroyErr)
		}
		return nil, fmt.Errorf("%w: failed to create embedding pipeline: %w", domain.ErrConfig, err)
	}

	run := func(texts []string) ([][]float32, error) {
		result, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	}

	e, err := newHugotEmbedding(run, model, settings)
	if err != nil {
		_ = session.Destroy()
		return nil, err
	}
	e.session = session
	return e, nil
}

// newHugotEmbedding applies defaults and measures the output size with one probe run.
func newHugotEmbedding(run func([]string) ([][]float32, error), model string, settings domain.EmbeddingSettings) (*HugotEmbedding, error) {
	e := &HugotEmbedding{
		run:           run,
		model:         model,
		maxInputChars: settings.MaxInputChars,
		batchSize:     settings.BatchSize,
	}
	if e.maxInputChars <= 0 {
		e.maxInputChars = hugotDefaultMaxChars
	}
	if e.batchSize <= 0 {
		e.batchSize = 16
	}

	// the ONNX graph is the source of truth for the output size
	probe, err := e.run([]string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding probe failed: %w", domain.ErrConfig, err)
	}
	if len(probe) == 0 || len(probe[0]) == 0 {
		return nil, fmt.Errorf("%w: embedding probe returned no vector", domain.ErrConfig)
	}
	e.dimensions = len(probe[0])
	if settings.Dimensions > 0 && settings.Dimensions != e.dimensions {
		return nil, fmt.Errorf("%w: model %s produces %d dimensions, configured %d",
			domain.ErrConfig, model, e.dimensions, settings.Dimensions)
	}
	return e, nil
}

// prepareHugotModel returns the local model path, downloading it on first use.
func prepareHugotModel(model, dir string) (string, error) {
	path := filepath.Join(dir, strings.ReplaceAll(model, "/", "_"))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: failed to create model directory: %w", domain.ErrConfig, err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(model, dir, opts)
	if err != nil {
		return "", fmt.Errorf("%w: failed to download model %s: %w", domain.ErrConfig, model, err)
	}
	return downloaded, nil
}

// Embed generates embeddings for multiple texts
func (e *HugotEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(texts))
		vectors, err := e.run(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: hugot pipeline: %w", domain.ErrEmbedding, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: hugot returned %d embeddings for %d inputs", domain.ErrEmbedding, len(vectors), end-start)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery generates an embedding for a search query
func (e *HugotEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *HugotEmbedding) Dimensions() int    { return e.dimensions }
func (e *HugotEmbedding) Model() string      { return e.model }
func (e *HugotEmbedding) MaxInputChars() int { return e.maxInputChars }

// HealthCheck runs a one-word embedding through the pipeline.
func (e *HugotEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"health"})
	return err
}

// Close destroys the hugot session
func (e *HugotEmbedding) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}
