package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/config"
	"github.com/bull/coursemap/internal/course"
	"github.com/bull/coursemap/internal/llm/llmtest"
)

// flaky fails the first n calls with err, then delegates to a fake.
type flaky struct {
	*llmtest.Fake
	n     int32
	err   error
	calls atomic.Int32
	block bool
}

func (f *flaky) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) <= f.n {
		if f.block {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, f.err
	}
	return f.Fake.Embed(ctx, texts)
}

func fastRetry(p Provider, attempts int) *Retrying {
	return WithRetry(p, RetryOptions{
		CallTimeout:     50 * time.Millisecond,
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}, nil)
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	p := &flaky{Fake: llmtest.New(8), n: 2, err: &StatusError{Code: 503}}
	vecs, err := fastRetry(p, 3).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestRetryGivesUpWithTransportError(t *testing.T) {
	p := &flaky{Fake: llmtest.New(8), n: 10, err: &StatusError{Code: 429}}
	_, err := fastRetry(p, 3).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, course.ErrTransport)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	p := &flaky{Fake: llmtest.New(8), n: 10, err: &StatusError{Code: 400}}
	_, err := fastRetry(p, 5).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, course.ErrTransport)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestRetryTreatsTimeoutAsTransient(t *testing.T) {
	p := &flaky{Fake: llmtest.New(8), n: 1, block: true}
	vecs, err := fastRetry(p, 2).Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestRetryStopsOnCallerCancel(t *testing.T) {
	p := &flaky{Fake: llmtest.New(8), n: 100, block: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fastRetry(p, 5).Embed(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, course.ErrTransport)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&openai.Error{StatusCode: 429}))
	assert.True(t, IsTransient(&openai.Error{StatusCode: 502}))
	assert.False(t, IsTransient(&openai.Error{StatusCode: 401}))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.False(t, IsTransient(nil))
}

type fixedDim struct {
	*llmtest.Fake
	odd int
}

func (f fixedDim) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := f.Fake.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if f.odd >= 0 && f.odd < len(vecs) {
		vecs[f.odd] = vecs[f.odd][:len(vecs[f.odd])-1]
	}
	return vecs, nil
}

func TestBatchEmbedderKeepsOrder(t *testing.T) {
	fake := llmtest.New(16)
	texts := make([]string, 23)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk number %d", i)
	}
	vecs, err := NewBatchEmbedder(fake, 5, 3, 16).EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, llmtest.Vector(texts[i], 16), v)
	}
	assert.Equal(t, 5, fake.EmbedCalls)
}

func TestBatchEmbedderDimensionMismatch(t *testing.T) {
	_, err := NewBatchEmbedder(llmtest.New(8), 4, 2, 16).EmbedAll(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, course.ErrEmbeddingDimensionMismatch)

	_, err = NewBatchEmbedder(fixedDim{Fake: llmtest.New(8), odd: 1}, 4, 2, 0).EmbedAll(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, course.ErrEmbeddingDimensionMismatch)
}

func TestBatchEmbedderPropagatesErrors(t *testing.T) {
	fake := llmtest.New(8)
	fake.EmbedErr = fmt.Errorf("%w: down", course.ErrTransport)
	_, err := NewBatchEmbedder(fake, 1, 2, 8).EmbedAll(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, course.ErrTransport)
}

func TestOllamaHealth(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer ok.Close()

	p, err := NewOllama(config.ProviderConfig{BaseURL: ok.URL, ChatModel: "llama3.2", EmbeddingModel: "nomic-embed-text", Dimension: 768})
	require.NoError(t, err)
	assert.NoError(t, p.Health(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading", http.StatusServiceUnavailable)
	}))
	defer down.Close()
	p, err = NewOllama(config.ProviderConfig{BaseURL: down.URL, ChatModel: "llama3.2", EmbeddingModel: "nomic-embed-text"})
	require.NoError(t, err)
	err = p.Health(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.True(t, IsTransient(err))
}

func TestNewRejectsMissingKey(t *testing.T) {
	_, err := New(config.ProviderConfig{Name: "openai"}, nil)
	assert.Error(t, err)
	_, err = New(config.ProviderConfig{Name: "mystery"}, nil)
	assert.Error(t, err)
}
