package topics

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/coursemap/internal/course"
)

type scriptedGenerator struct {
	out   string
	err   error
	calls int
	last  string
}

func (g *scriptedGenerator) Generate(_ context.Context, _, input string) (string, error) {
	g.calls++
	g.last = input
	return g.out, g.err
}

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Label
		ok   bool
	}{
		{"lines", "TOPIC: Binary Trees\nDESCRIPTION: Hierarchical data.", Label{"Binary Trees", "Hierarchical data."}, true},
		{"case and quotes", "topic: \"Recursion\"\n", Label{"Recursion", "Auto-generated topic"}, true},
		{"json", `{"name":"Graphs","description":"Nodes and edges"}`, Label{"Graphs", "Nodes and edges"}, true},
		{"garbage", "I cannot help with that.", Label{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLabel(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMNamerFallsBackWithoutRetry(t *testing.T) {
	gen := &scriptedGenerator{out: "no idea"}
	label, err := NewLLMNamer(gen, nil).Name(context.Background(), 2, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "Topic 3", label.Name)
	assert.Equal(t, 1, gen.calls)
}

func TestLLMNamerReturnsTransportError(t *testing.T) {
	gen := &scriptedGenerator{err: fmt.Errorf("%w: timeout", course.ErrTransport)}
	_, err := NewLLMNamer(gen, nil).Name(context.Background(), 0, []string{"x"})
	assert.ErrorIs(t, err, course.ErrTransport)
}

func TestLLMNamerSendsSamples(t *testing.T) {
	gen := &scriptedGenerator{out: "TOPIC: Sorting"}
	_, err := NewLLMNamer(gen, nil).Name(context.Background(), 0, []string{"merge sort", "quick sort"})
	require.NoError(t, err)
	assert.Contains(t, gen.last, "Excerpt 1:\nmerge sort")
	assert.Contains(t, gen.last, "Excerpt 2:\nquick sort")
}

func TestSampleTexts(t *testing.T) {
	texts := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	assert.Equal(t, []string{"a", "c", "e", "g", "i"}, sampleTexts(texts, 5, 10))
	assert.Equal(t, []string{"ab"}, sampleTexts([]string{"abcdef"}, 5, 2))
}
