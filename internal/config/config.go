// Package config loads runtime configuration from an optional TOML file,
// an optional .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

const (
	qdrantRESTPort = 6333
	qdrantGRPCPort = 6334
)

// Vector store backends
const (
	StoreQdrant   = "qdrant"
	StorePostgres = "postgres"
)

// Config is the full runtime configuration
type Config struct {
	VectorStore string                     `toml:"vector_store"`
	Qdrant      QdrantConfig               `toml:"qdrant"`
	Database    DatabaseConfig             `toml:"database"`
	Collection  CollectionConfig           `toml:"collection"`
	Embedding   EmbeddingConfig            `toml:"embedding"`
	Chunk       postprocessors.ChunkConfig `toml:"chunk"`
	Ingest      IngestConfig               `toml:"ingest"`
	Search      SearchConfig               `toml:"search"`
	Redis       RedisConfig                `toml:"redis"`
	Log         LogConfig                  `toml:"log"`
}

// QdrantConfig addresses the Qdrant gRPC endpoint. URL, when set, supplies
// host, port and TLS, and explicit host and port settings override it.
type QdrantConfig struct {
	URL    string `toml:"url"`
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	APIKey string `toml:"api_key"`
	UseTLS bool   `toml:"use_tls"`
}

// DatabaseConfig is the PostgreSQL connection for the pgvector store.
type DatabaseConfig struct {
	URL          string `toml:"url"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// CollectionConfig names the collection and its distance metric.
type CollectionConfig struct {
	Name     string `toml:"name"`
	Distance string `toml:"distance"`
}

// EmbeddingConfig mirrors domain.EmbeddingSettings plus gateway decorators.
type EmbeddingConfig struct {
	Provider      string  `toml:"provider"`
	Model         string  `toml:"model"`
	BaseURL       string  `toml:"base_url"`
	APIKey        string  `toml:"api_key"`
	Dimensions    int     `toml:"dimensions"`
	MaxInputChars int     `toml:"max_input_chars"`
	BatchSize     int     `toml:"batch_size"`
	TimeoutSec    int     `toml:"timeout_sec"`
	ModelDir      string  `toml:"model_dir"`
	RPS           float64 `toml:"rps"` // zero disables rate limiting
	CacheTTLSec   int     `toml:"cache_ttl_sec"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	Concurrency      int `toml:"concurrency"`
	BatchSize        int `toml:"batch_size"`
	MaxRetries       int `toml:"max_retries"`
	InitialBackoffMs int `toml:"initial_backoff_ms"`
	MaxBackoffMs     int `toml:"max_backoff_ms"`
}

// SearchConfig bounds query time and result count.
type SearchConfig struct {
	TimeoutSec int `toml:"timeout_sec"`
	MaxLimit   int `toml:"max_limit"`
}

// RedisConfig enables the distributed lock and embedding cache.
type RedisConfig struct {
	URL string `toml:"url"` // empty disables the lock and cache
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text or json
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		VectorStore: StoreQdrant,
		Qdrant:      QdrantConfig{Host: "localhost", Port: qdrantGRPCPort},
		Database:    DatabaseConfig{MaxOpenConns: 10},
		Collection:  CollectionConfig{Name: "fed_speeches", Distance: string(domain.DistanceCosine)},
		Embedding: EmbeddingConfig{
			Provider:    string(domain.AIProviderOpenAI),
			TimeoutSec:  30,
			CacheTTLSec: 7 * 24 * 3600,
		},
		Chunk: postprocessors.DefaultChunkConfig(),
		Ingest: IngestConfig{
			Concurrency:      4,
			BatchSize:        32,
			MaxRetries:       3,
			InitialBackoffMs: 500,
			MaxBackoffMs:     10000,
		},
		Search: SearchConfig{TimeoutSec: 10, MaxLimit: 100},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadDotEnv loads variables from .env files that exist. Existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: load %s: %w", domain.ErrConfig, f, err)
		}
	}
	return nil
}

// Load builds the configuration: defaults, then the TOML file at path if not
// empty, then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config file: %w", domain.ErrConfig, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfig, path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	e := &env{}

	e.setString("VECTOR_STORE", &c.VectorStore)
	e.setString("QDRANT_URL", &c.Qdrant.URL)
	if c.Qdrant.URL != "" {
		e.add(c.Qdrant.applyURL())
	}
	e.setString("QDRANT_HOST", &c.Qdrant.Host)
	e.setInt("QDRANT_PORT", &c.Qdrant.Port)
	e.setString("QDRANT_API_KEY", &c.Qdrant.APIKey)
	e.setBool("QDRANT_USE_TLS", &c.Qdrant.UseTLS)

	e.setString("DATABASE_URL", &c.Database.URL)
	e.setInt("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)

	e.setString("COLLECTION_NAME", &c.Collection.Name)
	e.setString("COLLECTION_DISTANCE", &c.Collection.Distance)

	e.setString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	e.setString("EMBEDDING_MODEL", &c.Embedding.Model)
	e.setString("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	e.setString("OPENAI_API_KEY", &c.Embedding.APIKey)
	e.setInt("EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)
	e.setInt("EMBEDDING_MAX_INPUT_CHARS", &c.Embedding.MaxInputChars)
	e.setInt("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize)
	e.setInt("EMBEDDING_TIMEOUT_SEC", &c.Embedding.TimeoutSec)
	e.setString("HUGOT_MODEL_DIR", &c.Embedding.ModelDir)
	e.setFloat("EMBEDDING_RPS", &c.Embedding.RPS)
	e.setInt("EMBEDDING_CACHE_TTL_SEC", &c.Embedding.CacheTTLSec)

	e.setInt("CHUNK_MAX_CHARS", &c.Chunk.MaxChars)
	e.setInt("CHUNK_OVERLAP_CHARS", &c.Chunk.OverlapChars)

	e.setInt("INGEST_CONCURRENCY", &c.Ingest.Concurrency)
	e.setInt("INGEST_BATCH_SIZE", &c.Ingest.BatchSize)
	e.setInt("INGEST_MAX_RETRIES", &c.Ingest.MaxRetries)
	e.setInt("INGEST_INITIAL_BACKOFF_MS", &c.Ingest.InitialBackoffMs)
	e.setInt("INGEST_MAX_BACKOFF_MS", &c.Ingest.MaxBackoffMs)

	e.setInt("SEARCH_TIMEOUT_SEC", &c.Search.TimeoutSec)
	e.setInt("SEARCH_MAX_LIMIT", &c.Search.MaxLimit)

	e.setString("REDIS_URL", &c.Redis.URL)
	e.setString("LOG_LEVEL", &c.Log.Level)
	e.setString("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// applyProviderDefaults fills the model when only the provider is chosen.
func (c *Config) applyProviderDefaults() {
	if c.Embedding.Model != "" {
		return
	}
	switch domain.AIProvider(c.Embedding.Provider) {
	case domain.AIProviderOpenAI:
		c.Embedding.Model = "text-embedding-3-small"
	case domain.AIProviderOllama:
		c.Embedding.Model = "nomic-embed-text"
	case domain.AIProviderHugot:
		c.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
}

// Validate checks every section. All failures wrap domain.ErrConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrConfig}, args...)...))
	}

	switch c.VectorStore {
	case StoreQdrant:
		if c.Qdrant.Port <= 0 {
			fail("QDRANT_PORT must be positive")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			fail("DATABASE_URL is required for the postgres vector store")
		}
	default:
		fail("unknown VECTOR_STORE %q", c.VectorStore)
	}

	if strings.TrimSpace(c.Collection.Name) == "" {
		fail("COLLECTION_NAME is required")
	}
	if _, err := domain.ParseDistance(c.Collection.Distance); err != nil {
		errs = append(errs, err)
	}

	settings := c.Embedding.Settings()
	if err := settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Embedding.RPS < 0 || c.Embedding.CacheTTLSec < 0 || c.Embedding.TimeoutSec < 0 {
		fail("embedding rps, cache ttl and timeout must not be negative")
	}

	if err := c.Chunk.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Ingest.Concurrency < 1 {
		fail("INGEST_CONCURRENCY must be at least 1")
	}
	if c.Ingest.BatchSize < 1 {
		fail("INGEST_BATCH_SIZE must be at least 1")
	}
	if c.Ingest.MaxRetries < 0 {
		fail("INGEST_MAX_RETRIES must not be negative")
	}
	if c.Ingest.InitialBackoffMs <= 0 || c.Ingest.MaxBackoffMs < c.Ingest.InitialBackoffMs {
		fail("backoff must satisfy 0 < INGEST_INITIAL_BACKOFF_MS <= INGEST_MAX_BACKOFF_MS")
	}

	if c.Search.TimeoutSec < 0 || c.Search.MaxLimit < 0 {
		fail("search timeout and max limit must not be negative")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		fail("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// Distance returns the parsed collection metric. Call after Validate.
func (c *Config) Distance() domain.Distance {
	d, _ := domain.ParseDistance(c.Collection.Distance)
	return d
}

// Settings converts to the domain embedding settings.
func (e EmbeddingConfig) Settings() domain.EmbeddingSettings {
	return domain.EmbeddingSettings{
		Provider:      domain.AIProvider(strings.ToLower(e.Provider)),
		Model:         e.Model,
		APIKey:        e.APIKey,
		BaseURL:       e.BaseURL,
		Dimensions:    e.Dimensions,
		MaxInputChars: e.MaxInputChars,
		BatchSize:     e.BatchSize,
		Timeout:       time.Duration(e.TimeoutSec) * time.Second,
		ModelDir:      e.ModelDir,
	}
}

// CacheTTL is how long cached embeddings live.
func (e EmbeddingConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSec) * time.Second
}

func (i IngestConfig) InitialBackoff() time.Duration {
	return time.Duration(i.InitialBackoffMs) * time.Millisecond
}

func (i IngestConfig) MaxBackoff() time.Duration {
	return time.Duration(i.MaxBackoffMs) * time.Millisecond
}

func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: LOG_LEVEL %q: %w", domain.ErrConfig, s, err)
	}
	return level, nil
}

// env applies set variables and collects parse failures.
type env struct {
	errs []error
}

func (e *env) setString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (e *env) setInt(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not an integer", domain.ErrConfig, key, v))
		return
	}
	*dst = n
}

func (e *env) setFloat(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a number", domain.ErrConfig, key, v))
		return
	}
	*dst = f
}

func (e *env) setBool(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "on":
		*dst = true
		return
	case "no", "off":
		*dst = false
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s=%q is not a boolean", domain.ErrConfig, key, v))
		return
	}
	*dst = b
}

func (e *env) add(err error) {
	if err != nil {
		e.errs = append(e.errs, err)
	}
}

// applyURL takes host, port and TLS from a Qdrant URL such as
// https://xyz.cloud.qdrant.io:6333. The REST port 6333 maps to gRPC 6334.
func (q *QdrantConfig) applyURL() error {
	u, err := url.Parse(q.URL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: QDRANT_URL %q is not a valid URL", domain.ErrConfig, q.URL)
	}

	switch u.Scheme {
	case "https", "grpcs":
		q.UseTLS = true
	case "http", "grpc":
		q.UseTLS = false
	default:
		return fmt.Errorf("%w: QDRANT_URL scheme %q is not supported", domain.ErrConfig, u.Scheme)
	}

	q.Host = u.Hostname()
	q.Port = qdrantGRPCPort
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("%w: QDRANT_URL port %q: %w", domain.ErrConfig, p, err)
		}
		if n != qdrantRESTPort {
			q.Port = n
		}
	}
	return nil
}
