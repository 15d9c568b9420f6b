// Package config loads coursemap settings from a YAML file, a .env file and
// the process environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

// QdrantConfig contains connection details for the Qdrant backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// ChromemConfig points the chromem backend at its persistence directory.
// An empty path keeps the index in memory.
type ChromemConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig selects the similarity index backend.
type IndexConfig struct {
	Backend string        `yaml:"backend"` // memory | qdrant | chromem
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	Chromem ChromemConfig `yaml:"chromem"`
}

// ProviderConfig configures the embedding and generation provider.
type ProviderConfig struct {
	Name           string        `yaml:"name"` // openai | ollama
	EmbeddingModel string        `yaml:"embedding_model"`
	ChatModel      string        `yaml:"chat_model"`
	Dimension      int           `yaml:"dimension"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"-"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BatchSize      int           `yaml:"batch_size"`
	Concurrency    int           `yaml:"concurrency"`
}

// ClusteringConfig selects the clustering policy and its parameters.
type ClusteringConfig struct {
	Method         string  `yaml:"method"` // density | centroid
	MinClusterSize int     `yaml:"min_cluster_size"`
	MinSamples     int     `yaml:"min_samples"`
	Epsilon        float64 `yaml:"epsilon"`
	Clusters       int     `yaml:"clusters"`
}

// TopicsConfig tunes topic naming and prerequisite inference.
type TopicsConfig struct {
	MinCoOccurrence int `yaml:"min_cooccurrence"`
	SampleSize      int `yaml:"sample_size"`
	MaxSampleChars  int `yaml:"max_sample_chars"`
}

// RetrievalConfig tunes question answering.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	LowConfidenceScore  float64 `yaml:"low_confidence_score"`
	HighConfidenceScore float64 `yaml:"high_confidence_score"`
	MinChunks           int     `yaml:"min_chunks"`
	SummaryChunkLimit   int     `yaml:"summary_chunk_limit"`
}

type IngestConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// LockConfig selects where per-course locks live.
type LockConfig struct {
	Backend   string        `yaml:"backend"` // memory | redis
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// GraphConfig enables the optional Neo4j mirror when URI is set.
type GraphConfig struct {
	Neo4jURI      string `yaml:"neo4j_uri"`
	Neo4jUser     string `yaml:"neo4j_user"`
	Neo4jPassword string `yaml:"-"`
	Neo4jDatabase string `yaml:"neo4j_database"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level to a slog level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// ServerConfig configures the MCP server transport.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"` // http | stdio
}

// GitHubConfig points sync at a repository directory holding lecture files.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	Path  string `yaml:"path"`
	Token string `yaml:"-"`
}

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Index      IndexConfig      `yaml:"index"`
	Provider   ProviderConfig   `yaml:"provider"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Topics     TopicsConfig     `yaml:"topics"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Lock       LockConfig       `yaml:"lock"`
	Graph      GraphConfig      `yaml:"graph"`
	GitHub     GitHubConfig     `yaml:"github"`
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
}

// DefaultPath is used when neither --config nor COURSEMAP_CONFIG is given.
const DefaultPath = "coursemap.yaml"

// Load reads path (a missing file means defaults), then .env, then the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional in production
	_ = godotenv.Load()

	if path == "" {
		path = getEnv("COURSEMAP_CONFIG", DefaultPath)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	cfg.Database.Driver = getEnv("COURSEMAP_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = getEnv("COURSEMAP_DB_DSN", cfg.Database.DSN)
	cfg.Index.Backend = getEnv("COURSEMAP_INDEX", cfg.Index.Backend)
	cfg.Index.Qdrant.Host = getEnv("QDRANT_HOST", cfg.Index.Qdrant.Host)
	cfg.Index.Qdrant.Port = getEnvInt("QDRANT_PORT", cfg.Index.Qdrant.Port)
	cfg.Provider.Name = getEnv("COURSEMAP_PROVIDER", cfg.Provider.Name)
	cfg.Provider.BaseURL = getEnv("COURSEMAP_PROVIDER_URL", cfg.Provider.BaseURL)
	cfg.Provider.APIKey = getEnv("OPENAI_API_KEY", cfg.Provider.APIKey)
	cfg.Lock.Backend = getEnv("COURSEMAP_LOCK", cfg.Lock.Backend)
	cfg.Lock.RedisAddr = getEnv("REDIS_ADDR", cfg.Lock.RedisAddr)
	cfg.Graph.Neo4jURI = getEnv("NEO4J_URI", cfg.Graph.Neo4jURI)
	cfg.Graph.Neo4jUser = getEnv("NEO4J_USER", cfg.Graph.Neo4jUser)
	cfg.Graph.Neo4jPassword = getEnv("NEO4J_PASSWORD", cfg.Graph.Neo4jPassword)
	cfg.GitHub.Token = getEnv("GITHUB_TOKEN", cfg.GitHub.Token)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)
	cfg.Server.Mode = getEnv("MCP_MODE", cfg.Server.Mode)
}

// normalizeEnums lower-cases the enumerated settings so consumers can
// switch on them exactly.
func normalizeEnums(cfg *Config) {
	for _, v := range []*string{
		&cfg.Database.Driver,
		&cfg.Index.Backend,
		&cfg.Provider.Name,
		&cfg.Clustering.Method,
		&cfg.Lock.Backend,
		&cfg.Server.Mode,
	} {
		*v = strings.ToLower(strings.TrimSpace(*v))
	}
}

func applyDefaults(cfg *Config) {
	normalizeEnums(cfg)
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "coursemap.db"
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "memory"
	}
	if cfg.Index.Qdrant.Host == "" {
		cfg.Index.Qdrant.Host = "localhost"
	}
	if cfg.Index.Qdrant.Port == 0 {
		cfg.Index.Qdrant.Port = 6334
	}
	if cfg.Index.Qdrant.Collection == "" {
		cfg.Index.Qdrant.Collection = "lecture_chunks"
	}

	p := &cfg.Provider
	if p.Name == "" {
		p.Name = "openai"
	}
	switch p.Name {
	case "openai":
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = "text-embedding-3-small"
		}
		if p.ChatModel == "" {
			p.ChatModel = "gpt-4o-mini"
		}
		if p.Dimension == 0 {
			p.Dimension = 1536
		}
	case "ollama":
		if p.BaseURL == "" {
			p.BaseURL = "http://localhost:11434"
		}
		if p.EmbeddingModel == "" {
			p.EmbeddingModel = "nomic-embed-text"
		}
		if p.ChatModel == "" {
			p.ChatModel = "llama3.2"
		}
		if p.Dimension == 0 {
			p.Dimension = 768
		}
	}
	if p.CallTimeout == 0 {
		p.CallTimeout = 60 * time.Second
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.BatchSize == 0 {
		p.BatchSize = 100
	}
	if p.Concurrency == 0 {
		p.Concurrency = 4
	}

	c := &cfg.Clustering
	if c.Method == "" {
		c.Method = "density"
	}
	if c.MinClusterSize == 0 {
		c.MinClusterSize = 3
	}
	if c.MinSamples == 0 {
		c.MinSamples = 2
	}
	if c.Epsilon == 0 {
		c.Epsilon = 0.35
	}

	if cfg.Topics.MinCoOccurrence == 0 {
		cfg.Topics.MinCoOccurrence = 1
	}
	if cfg.Topics.SampleSize == 0 {
		cfg.Topics.SampleSize = 5
	}
	if cfg.Topics.MaxSampleChars == 0 {
		cfg.Topics.MaxSampleChars = 200
	}

	r := &cfg.Retrieval
	if r.TopK == 0 {
		r.TopK = 5
	}
	if r.LowConfidenceScore == 0 {
		r.LowConfidenceScore = 0.35
	}
	if r.HighConfidenceScore == 0 {
		r.HighConfidenceScore = 0.6
	}
	if r.MinChunks == 0 {
		r.MinChunks = 2
	}
	if r.SummaryChunkLimit == 0 {
		r.SummaryChunkLimit = 20
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 500
	}
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = "memory"
	}
	if cfg.Lock.RedisAddr == "" {
		cfg.Lock.RedisAddr = "localhost:6379"
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = 10 * time.Minute
	}
	if cfg.Graph.Neo4jUser == "" {
		cfg.Graph.Neo4jUser = "neo4j"
	}
	if cfg.Graph.Neo4jDatabase == "" {
		cfg.Graph.Neo4jDatabase = "neo4j"
	}
	if cfg.GitHub.Path == "" {
		cfg.GitHub.Path = "lectures"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "http"
	}
}

// Validate rejects unknown backends and non-positive sizes.
func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.Database.Driver, "sqlite", "postgres") {
		errs = append(errs, fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if !oneOf(c.Index.Backend, "memory", "qdrant", "chromem") {
		errs = append(errs, fmt.Errorf("index.backend %q: want memory, qdrant or chromem", c.Index.Backend))
	}
	if !oneOf(c.Provider.Name, "openai", "ollama") {
		errs = append(errs, fmt.Errorf("provider.name %q: want openai or ollama", c.Provider.Name))
	}
	if !oneOf(c.Clustering.Method, "density", "centroid") {
		errs = append(errs, fmt.Errorf("clustering.method %q: want density or centroid", c.Clustering.Method))
	}
	if !oneOf(c.Lock.Backend, "memory", "redis") {
		errs = append(errs, fmt.Errorf("lock.backend %q: want memory or redis", c.Lock.Backend))
	}
	if !oneOf(c.Server.Mode, "http", "stdio") {
		errs = append(errs, fmt.Errorf("server.mode %q: want http or stdio", c.Server.Mode))
	}
	positive := map[string]int{
		"provider.dimension":            c.Provider.Dimension,
		"provider.max_attempts":         c.Provider.MaxAttempts,
		"provider.batch_size":           c.Provider.BatchSize,
		"provider.concurrency":          c.Provider.Concurrency,
		"clustering.min_cluster_size":   c.Clustering.MinClusterSize,
		"clustering.min_samples":        c.Clustering.MinSamples,
		"topics.min_cooccurrence":       c.Topics.MinCoOccurrence,
		"topics.sample_size":            c.Topics.SampleSize,
		"retrieval.top_k":               c.Retrieval.TopK,
		"retrieval.summary_chunk_limit": c.Retrieval.SummaryChunkLimit,
		"ingest.chunk_size":             c.Ingest.ChunkSize,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.Clustering.Clusters < 0 {
		errs = append(errs, fmt.Errorf("clustering.clusters must not be negative, got %d", c.Clustering.Clusters))
	}
	if c.Clustering.Epsilon <= 0 || c.Clustering.Epsilon > 2 {
		errs = append(errs, fmt.Errorf("clustering.epsilon must be in (0, 2], got %v", c.Clustering.Epsilon))
	}
	if c.Retrieval.LowConfidenceScore > c.Retrieval.HighConfidenceScore {
		errs = append(errs, errors.New("retrieval.low_confidence_score exceeds high_confidence_score"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// getEnv returns environment variable value or default
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns environment variable as int or default
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
