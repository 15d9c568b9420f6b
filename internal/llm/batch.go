package llm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bull/coursemap/internal/course"
)

// BatchEmbedder splits texts into batches and embeds them concurrently.
// Every returned vector is checked against the expected dimension.
type BatchEmbedder struct {
	embedder    Embedder
	batchSize   int
	concurrency int
	dimension   int
}

// NewBatchEmbedder builds a batch embedder. A dimension of zero accepts the
// first vector's length and requires all others to match it.
func NewBatchEmbedder(e Embedder, batchSize, concurrency, dimension int) *BatchEmbedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BatchEmbedder{embedder: e, batchSize: batchSize, concurrency: concurrency, dimension: dimension}
}

func (b *BatchEmbedder) Dimension() int { return b.dimension }

// EmbedAll returns one vector per text, index-aligned.
func (b *BatchEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := b.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("batch %d-%d: got %d vectors for %d texts", start, end, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := CheckDimensions(out, b.dimension); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckDimensions fails with course.ErrEmbeddingDimensionMismatch if any
// vector differs from want (or from the first vector when want is zero).
func CheckDimensions(vecs [][]float32, want int) error {
	for i, v := range vecs {
		if want == 0 {
			want = len(v)
		}
		if len(v) != want || want == 0 {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d",
				course.ErrEmbeddingDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}
