package index

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/course"
)

type memSource map[string][]course.Chunk

func (m memSource) CourseChunks(_ context.Context, courseID string) ([]course.Chunk, error) {
	return m[courseID], nil
}

func intPtr(v int) *int { return &v }

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestSearchEmptyCourse(t *testing.T) {
	idx := NewBruteForce(memSource{})
	_, err := idx.Search(context.Background(), []float32{1, 0}, "C1", 3, nil)
	assert.ErrorIs(t, err, course.ErrEmptyIndex)
	assert.ErrorIs(t, err, course.ErrInput)
}

func TestSearchFilterYieldsEmptyNotError(t *testing.T) {
	src := memSource{"C1": {
		{ID: "rec", CourseID: "C1", SessionID: "s2", SessionOrder: 2, Position: 1, Text: "recursion", Embedding: []float32{1, 0}},
	}}
	hits, err := NewBruteForce(src).Search(context.Background(), []float32{1, 0}, "C1", 5, intPtr(1))
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDimensionMismatch(t *testing.T) {
	src := memSource{"C1": {{ID: "a", Embedding: []float32{1, 0, 0}}}}
	_, err := NewBruteForce(src).Search(context.Background(), []float32{1, 0}, "C1", 1, nil)
	assert.ErrorIs(t, err, course.ErrEmbeddingDimensionMismatch)
}

func TestSearchRejectsBadK(t *testing.T) {
	src := memSource{"C1": {{ID: "a", Embedding: []float32{1, 0}}}}
	_, err := NewBruteForce(src).Search(context.Background(), []float32{1, 0}, "C1", 0, nil)
	assert.ErrorIs(t, err, course.ErrInput)
}

func TestSearchTieBreak(t *testing.T) {
	same := []float32{1, 1}
	src := memSource{"C1": {
		{ID: "late", SessionOrder: 3, Position: 1, Embedding: same},
		{ID: "early-2", SessionOrder: 1, Position: 2, Embedding: same},
		{ID: "early-1", SessionOrder: 1, Position: 1, Embedding: same},
	}}
	hits, err := NewBruteForce(src).Search(context.Background(), same, "C1", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "early-1", hits[0].ID)
	assert.Equal(t, "early-2", hits[1].ID)
}

func randomChunks(r *rand.Rand, n, dim, sessions int) []course.Chunk {
	chunks := make([]course.Chunk, n)
	for i := range chunks {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = r.Float32()*2 - 1
		}
		order := r.Intn(sessions) + 1
		chunks[i] = course.Chunk{
			ID:           fmt.Sprintf("c%03d", i),
			CourseID:     "C1",
			SessionID:    fmt.Sprintf("s%d", order),
			SessionOrder: order,
			Position:     r.Intn(20) + 1,
			Embedding:    vec,
		}
	}
	return chunks
}

func TestSearchTemporalFilterProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		chunks := randomChunks(r, 40, 8, 6)
		idx := NewBruteForce(memSource{"C1": chunks})
		query := randomChunks(r, 1, 8, 1)[0].Embedding
		limit := r.Intn(7)

		hits, err := idx.Search(context.Background(), query, "C1", 10, intPtr(limit))
		require.NoError(t, err)
		for i, h := range hits {
			assert.LessOrEqual(t, h.SessionOrder, limit, "trial %d", trial)
			if i > 0 {
				assert.GreaterOrEqual(t, hits[i-1].Score, h.Score)
			}
		}
	}
}

func TestSearchSelfQueryRanksFirst(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	chunks := randomChunks(r, 30, 16, 5)
	idx := NewBruteForce(memSource{"C1": chunks})
	for _, c := range chunks {
		hits, err := idx.Search(context.Background(), c.Embedding, "C1", 1, nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, c.ID, hits[0].ID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	}
}
