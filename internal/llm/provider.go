// Package llm provides the embedding and text-generation collaborators
// behind one capability interface, with OpenAI and Ollama implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/openai/openai-go"

	"github.com/bull/coursemap/internal/config"
)

// Embedder maps texts to fixed-length vectors, index-aligned.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from an instruction and supplied context.
type Generator interface {
	Generate(ctx context.Context, instruction, input string) (string, error)
}

// Provider is the full capability set chosen at startup.
type Provider interface {
	Embedder
	Generator
	Name() string
	Dimension() int
	Health(ctx context.Context) error
}

// New builds the configured provider wrapped with timeout and retry.
func New(cfg config.ProviderConfig, logger *slog.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Name {
	case "openai":
		p, err = NewOpenAI(cfg)
	case "ollama":
		p, err = NewOllama(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(p, RetryOptions{
		CallTimeout: cfg.CallTimeout,
		MaxAttempts: cfg.MaxAttempts,
	}, logger), nil
}

// IsTransient reports whether err is worth retrying: timeouts, network
// failures, rate limiting and server errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == 429 || statusErr.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusError is an HTTP failure from a provider without a typed client error.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Body)
}

// toFloat32 converts []float64 to []float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

const healthTimeout = 3 * time.Second
