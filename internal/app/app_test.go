package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/index"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = "file:app_test?mode=memory&cache=shared"
	cfg.Provider.Name = "ollama"
	cfg.Provider.BaseURL = "http://127.0.0.1:1"
	return cfg
}

func TestBuild_MemoryBackends(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, &index.BruteForce{}, a.Index)
	assert.Equal(t, "ollama", a.Provider.Name())
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Detector)
	assert.NotNil(t, a.Answers)
}

func TestBuild_UnknownIndexBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Index.Backend = "faiss"
	_, err := Build(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "faiss")
}

func TestHealth_ProviderDown(t *testing.T) {
	a, err := Build(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	err = a.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider")
}
