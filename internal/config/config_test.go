package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Index.Backend)
	assert.Equal(t, "density", cfg.Clustering.Method)
	assert.Equal(t, 3, cfg.Clustering.MinClusterSize)
	assert.Equal(t, 2, cfg.Clustering.MinSamples)
	assert.InDelta(t, 0.35, cfg.Clustering.Epsilon, 1e-9)
	assert.Equal(t, 1, cfg.Topics.MinCoOccurrence)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 60*time.Second, cfg.Provider.CallTimeout)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursemap.yaml")
	yml := `
provider:
  name: ollama
clustering:
  method: centroid
  clusters: 4
retrieval:
  top_k: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("COURSEMAP_INDEX", "chromem")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "http://localhost:11434", cfg.Provider.BaseURL)
	assert.Equal(t, 768, cfg.Provider.Dimension)
	assert.Equal(t, "centroid", cfg.Clustering.Method)
	assert.Equal(t, 4, cfg.Clustering.Clusters)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, "chromem", cfg.Index.Backend)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Index.Backend = "faiss"
	cfg.Clustering.Method = "spectral"
	cfg.Ingest.ChunkSize = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.backend")
	assert.Contains(t, err.Error(), "clustering.method")
	assert.Contains(t, err.Error(), "ingest.chunk_size")
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "chatty"}.SlogLevel())
}

func TestLoadNormalizesEnumCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursemap.yaml")
	yml := `
database:
  driver: SQLite
provider:
  name: " Ollama "
clustering:
  method: Density
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("COURSEMAP_INDEX", "Qdrant")
	t.Setenv("MCP_MODE", "STDIO")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "ollama", cfg.Provider.Name)
	assert.Equal(t, "http://localhost:11434", cfg.Provider.BaseURL)
	assert.Equal(t, "density", cfg.Clustering.Method)
	assert.Equal(t, "qdrant", cfg.Index.Backend)
	assert.Equal(t, "stdio", cfg.Server.Mode)
}

func TestValidateIsCaseSensitive(t *testing.T) {
	cfg := Default()
	cfg.Clustering.Method = "Density"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clustering.method")
}
