// Package index defines the similarity index contract and an exact
// brute-force implementation over a chunk source.
package index

import (
	"context"
	"fmt"
	"math"

	"github.com/bull/coursemap/internal/course"
)

// Searcher ranks a course's chunks by cosine similarity to a query vector.
// When maxSessionOrder is non-nil, chunks from later sessions are excluded
// before ranking. Implementations return course.ErrEmptyIndex when the course
// has no chunks at all, and an empty slice when nothing passes the filter.
type Searcher interface {
	Search(ctx context.Context, query []float32, courseID string, k int, maxSessionOrder *int) ([]course.ScoredChunk, error)
}

// Writer keeps an index in sync with the chunk store.
type Writer interface {
	IndexChunks(ctx context.Context, chunks []course.Chunk) error
	RemoveSession(ctx context.Context, courseID, sessionID string) error
}

// Index is a full index backend.
type Index interface {
	Searcher
	Writer
}

// ChunkSource supplies every chunk of a course with its embedding.
type ChunkSource interface {
	CourseChunks(ctx context.Context, courseID string) ([]course.Chunk, error)
}

// BruteForce scores every chunk of the course on each query. Writes are
// no-ops because it reads straight from the chunk store.
type BruteForce struct {
	source ChunkSource
}

func NewBruteForce(source ChunkSource) *BruteForce {
	return &BruteForce{source: source}
}

func (b *BruteForce) IndexChunks(context.Context, []course.Chunk) error { return nil }

func (b *BruteForce) RemoveSession(context.Context, string, string) error { return nil }

func (b *BruteForce) Search(ctx context.Context, query []float32, courseID string, k int, maxSessionOrder *int) ([]course.ScoredChunk, error) {
	if err := CheckQuery(query, k); err != nil {
		return nil, err
	}
	chunks, err := b.source.CourseChunks(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: course %s", course.ErrEmptyIndex, courseID)
	}

	hits := make([]course.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, query has %d",
				course.ErrEmbeddingDimensionMismatch, c.ID, len(c.Embedding), len(query))
		}
		if maxSessionOrder != nil && c.SessionOrder > *maxSessionOrder {
			continue
		}
		hits = append(hits, course.ScoredChunk{Chunk: c, Score: Cosine(query, c.Embedding)})
	}
	return TopK(hits, k), nil
}

// CheckQuery validates the arguments shared by every backend.
func CheckQuery(query []float32, k int) error {
	if len(query) == 0 {
		return course.ErrorfInput("empty query vector")
	}
	if k <= 0 {
		return course.ErrorfInput("k must be positive, got %d", k)
	}
	return nil
}

// TopK ranks hits and keeps the best k.
func TopK(hits []course.ScoredChunk, k int) []course.ScoredChunk {
	course.RankChunks(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero
// length. Vectors must have equal dimension.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
