package course

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInsufficientSessions, "input"},
		{ErrEmptyIndex, "input"},
		{ErrEmbeddingDimensionMismatch, "consistency"},
		{ErrGraphInvariantViolation, "consistency"},
		{fmt.Errorf("%w: timeout", ErrTransport), "transport"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Class(tt.err), tt.err.Error())
	}
}

func TestWrapStage(t *testing.T) {
	err := WrapStage("CS101", StageCluster, ErrInsufficientSessions)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "CS101", se.Course)
	assert.Equal(t, StageCluster, se.Stage)
	assert.ErrorIs(t, err, ErrInsufficientSessions)
	assert.ErrorIs(t, err, ErrInput)

	again := WrapStage("CS101", StageCommit, err)
	assert.Same(t, err, again)
	assert.NoError(t, WrapStage("CS101", StageCommit, nil))
}

func TestNormalizeCourseID(t *testing.T) {
	assert.Equal(t, "CS101", NormalizeCourseID("  cs101 "))
}

func TestRankChunksTieBreak(t *testing.T) {
	hits := []ScoredChunk{
		{Chunk: Chunk{ID: "c", SessionOrder: 2, Position: 1}, Score: 0.5},
		{Chunk: Chunk{ID: "b", SessionOrder: 1, Position: 3}, Score: 0.5},
		{Chunk: Chunk{ID: "a", SessionOrder: 1, Position: 2}, Score: 0.5},
		{Chunk: Chunk{ID: "d", SessionOrder: 3, Position: 1}, Score: 0.9},
	}
	RankChunks(hits)
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestGenerationValidate(t *testing.T) {
	gen := Generation{
		CourseID: "CS101",
		Topics:   []Topic{{ID: "t1", CourseID: "CS101"}, {ID: "t2", CourseID: "CS101"}},
		Edges:    []PrerequisiteEdge{{FromTopicID: "t1", ToTopicID: "t2"}},
	}
	require.NoError(t, gen.Validate())

	gen.Edges = append(gen.Edges, PrerequisiteEdge{FromTopicID: "t1", ToTopicID: "t9"})
	assert.ErrorIs(t, gen.Validate(), ErrConsistency)

	gen.Edges = []PrerequisiteEdge{{FromTopicID: "t1", ToTopicID: "t1"}}
	assert.ErrorIs(t, gen.Validate(), ErrConsistency)
}

func TestMemoryLockerSerializesKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "CS101")
	require.NoError(t, err)

	// A different course is not blocked.
	other, err := l.Lock(ctx, "MA201")
	require.NoError(t, err)
	other()

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "CS101")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(ctx, "CS101")
	require.NoError(t, err)
	again()
}
