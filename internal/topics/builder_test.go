package topics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/cluster"
	"github.com/bull/coursemap/internal/course"
)

// keywordNamer names a cluster after the first word of its first sample.
type keywordNamer struct{}

func (keywordNamer) Name(_ context.Context, index int, samples []string) (Label, error) {
	if len(samples) == 0 {
		return FallbackLabel(index), nil
	}
	return Label{Name: strings.Fields(samples[0])[0], Description: "about " + samples[0]}, nil
}

type failingNamer struct{ err error }

func (f failingNamer) Name(context.Context, int, []string) (Label, error) { return Label{}, f.err }

func chunk(id string, order, pos int, text string) course.Chunk {
	return course.Chunk{
		ID:           id,
		CourseID:     "C1",
		SessionID:    fmt.Sprintf("s%d", order),
		SessionOrder: order,
		Position:     pos,
		Text:         text,
	}
}

func topicByName(gen course.Generation, name string) course.Topic {
	for _, t := range gen.Topics {
		if t.Name == name {
			return t
		}
	}
	return course.Topic{}
}

func TestBuildRecursionBeforeTrees(t *testing.T) {
	chunks := []course.Chunk{
		chunk("a", 1, 1, "Recursion base case"),
		chunk("b", 1, 2, "Recursion call stack"),
		chunk("c", 2, 1, "Recursion on lists"),
		chunk("d", 3, 1, "Recursion over nodes"),
		chunk("e", 3, 2, "Trees and traversal"),
		chunk("f", 3, 3, "Trees height"),
	}
	labels := []int{0, 0, 0, 0, 1, 1}

	b := NewBuilder(keywordNamer{}, BuilderConfig{MinCoOccurrence: 1}, nil)
	gen, err := b.Build(context.Background(), "C1", chunks, labels)
	require.NoError(t, err)
	require.Len(t, gen.Topics, 2)

	rec, trees := topicByName(gen, "Recursion"), topicByName(gen, "Trees")
	require.NotEmpty(t, rec.ID)
	require.NotEmpty(t, trees.ID)

	assert.Equal(t, []course.PrerequisiteEdge{{FromTopicID: rec.ID, ToTopicID: trees.ID}}, gen.Edges)

	var recApps []course.Appearance
	for _, a := range gen.Appearances {
		if a.TopicID == rec.ID {
			recApps = append(recApps, a)
		}
	}
	require.Len(t, recApps, 3)
	assert.Equal(t, 2, recApps[0].Frequency)
	assert.Equal(t, 1, recApps[0].FirstPosition)
	assert.Equal(t, "s1", recApps[0].SessionID)
	assert.Equal(t, "s3", recApps[2].SessionID)
}

func TestBuildNoEdgeOnTieOrWithoutCoOccurrence(t *testing.T) {
	chunks := []course.Chunk{
		chunk("a", 1, 1, "Alpha one"),
		chunk("b", 1, 2, "Beta one"),
		chunk("c", 2, 1, "Alpha two"),
		chunk("d", 2, 2, "Beta two"),
		chunk("e", 3, 1, "Gamma three"),
	}
	labels := []int{0, 1, 0, 1, 2}

	gen, err := NewBuilder(keywordNamer{}, BuilderConfig{}, nil).Build(context.Background(), "C1", chunks, labels)
	require.NoError(t, err)
	assert.Len(t, gen.Topics, 3)
	// Alpha and Beta tie on first order; Gamma shares no session with either.
	assert.Empty(t, gen.Edges)
}

func TestBuildCoOccurrenceThreshold(t *testing.T) {
	chunks := []course.Chunk{
		chunk("a", 1, 1, "Alpha"),
		chunk("b", 2, 1, "Alpha"),
		chunk("c", 2, 2, "Beta"),
		chunk("d", 3, 1, "Alpha"),
		chunk("e", 3, 2, "Beta"),
	}
	labels := []int{0, 0, 1, 0, 1}

	gen, err := NewBuilder(keywordNamer{}, BuilderConfig{MinCoOccurrence: 2}, nil).Build(context.Background(), "C1", chunks, labels)
	require.NoError(t, err)
	assert.Len(t, gen.Edges, 1)

	gen, err = NewBuilder(keywordNamer{}, BuilderConfig{MinCoOccurrence: 3}, nil).Build(context.Background(), "C1", chunks, labels)
	require.NoError(t, err)
	assert.Empty(t, gen.Edges)
}

func TestBuildIgnoresNoise(t *testing.T) {
	chunks := []course.Chunk{chunk("a", 1, 1, "Alpha"), chunk("b", 2, 1, "Stray"), chunk("c", 3, 1, "Alpha")}
	gen, err := NewBuilder(keywordNamer{}, BuilderConfig{}, nil).Build(context.Background(), "C1", chunks, []int{0, cluster.Noise, 0})
	require.NoError(t, err)
	require.Len(t, gen.Topics, 1)
	assert.Len(t, gen.Appearances, 2)
}

func TestBuildLabelCountMismatch(t *testing.T) {
	_, err := NewBuilder(keywordNamer{}, BuilderConfig{}, nil).Build(context.Background(), "C1", []course.Chunk{chunk("a", 1, 1, "x")}, nil)
	assert.ErrorIs(t, err, course.ErrInput)
}

func TestBuildNamerTransportFailure(t *testing.T) {
	transport := fmt.Errorf("%w: generator unavailable", course.ErrTransport)
	chunks := []course.Chunk{chunk("a", 1, 1, "Alpha"), chunk("b", 2, 1, "Alpha")}
	_, err := NewBuilder(failingNamer{err: transport}, BuilderConfig{}, nil).Build(context.Background(), "C1", chunks, []int{0, 0})
	assert.ErrorIs(t, err, course.ErrTransport)
}

func TestBuildAcyclicProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 100; trial++ {
		n := 10 + r.Intn(40)
		chunks := make([]course.Chunk, n)
		labels := make([]int, n)
		for i := range chunks {
			chunks[i] = chunk(fmt.Sprintf("c%d", i), r.Intn(8)+1, r.Intn(10)+1, fmt.Sprintf("w%d text", i))
			labels[i] = r.Intn(6) - 1
		}
		gen, err := NewBuilder(keywordNamer{}, BuilderConfig{}, nil).Build(context.Background(), "C1", chunks, labels)
		require.NoError(t, err, "trial %d", trial)
		require.NoError(t, VerifyAcyclic(gen.Topics, gen.Edges))
	}
}

func TestVerifyAcyclicDetectsCycle(t *testing.T) {
	topics := []course.Topic{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	edges := []course.PrerequisiteEdge{
		{FromTopicID: "a", ToTopicID: "b"},
		{FromTopicID: "b", ToTopicID: "c"},
		{FromTopicID: "c", ToTopicID: "a"},
	}
	err := VerifyAcyclic(topics, edges)
	assert.ErrorIs(t, err, course.ErrGraphInvariantViolation)
	assert.True(t, errors.Is(err, course.ErrConsistency))
}
