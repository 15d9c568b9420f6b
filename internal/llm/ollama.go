package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/bull/coursemap/internal/config"
)

// Ollama talks to a local Ollama server through langchaingo.
type Ollama struct {
	chat      *ollama.LLM
	embedder  embeddings.Embedder
	baseURL   string
	dimension int
	http      *http.Client
}

func NewOllama(cfg config.ProviderConfig) (*Ollama, error) {
	chat, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.ChatModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama chat model: %w", err)
	}
	embedLLM, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama embedding model: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(embedLLM)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &Ollama{
		chat:      chat,
		embedder:  embedder,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		dimension: cfg.Dimension,
		http:      &http.Client{Timeout: healthTimeout},
	}, nil
}

func (o *Ollama) Name() string   { return "ollama" }
func (o *Ollama) Dimension() int { return o.dimension }

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding failed: %w", err)
	}
	return vecs, nil
}

func (o *Ollama) Generate(ctx context.Context, instruction, input string) (string, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, instruction),
		llms.TextParts(llms.ChatMessageTypeHuman, input),
	}
	resp, err := o.chat.GenerateContent(ctx, msgs, llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ollama returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// Health lists local models via /api/tags.
func (o *Ollama) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}
