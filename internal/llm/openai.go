package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/coursemap/internal/config"
)

// OpenAI embeds with an embeddings model and generates with a chat model.
// Client retries are disabled so WithRetry owns the retry policy.
type OpenAI struct {
	client         openai.Client
	embeddingModel string
	chatModel      string
	dimension      int
}

// NewOpenAI requires an API key from config or OPENAI_API_KEY.
func NewOpenAI(cfg config.ProviderConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:         openai.NewClient(opts...),
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
		dimension:      cfg.Dimension,
	}, nil
}

func (o *OpenAI) Name() string   { return "openai" }
func (o *OpenAI) Dimension() int { return o.dimension }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if int(data.Index) >= len(out) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		out[data.Index] = toFloat32(data.Embedding)
	}
	return out, nil
}

func (o *OpenAI) Generate(ctx context.Context, instruction, input string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(input),
		},
		Model:       openai.ChatModel(o.chatModel),
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if _, err := o.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai unreachable: %w", err)
	}
	return nil
}
