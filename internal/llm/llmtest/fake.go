// Package llmtest provides deterministic providers for tests.
package llmtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

// Fake embeds text as a normalized bag of hashed words and answers
// Generate with a scripted function. It is safe for concurrent use.
type Fake struct {
	Dim int
	// Reply produces the Generate output. Nil returns "ok".
	Reply func(instruction, input string) (string, error)
	// EmbedErr, when set, is returned by every Embed call.
	EmbedErr error

	mu          sync.Mutex
	EmbedCalls  int
	Generations []string
}

func New(dim int) *Fake { return &Fake{Dim: dim} }

func (f *Fake) Name() string   { return "fake" }
func (f *Fake) Dimension() int { return f.Dim }

func (f *Fake) Health(context.Context) error { return nil }

func (f *Fake) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.EmbedCalls++
	f.mu.Unlock()
	if f.EmbedErr != nil {
		return nil, f.EmbedErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, f.Dim)
	}
	return out, nil
}

func (f *Fake) Generate(_ context.Context, instruction, input string) (string, error) {
	f.mu.Lock()
	f.Generations = append(f.Generations, input)
	f.mu.Unlock()
	if f.Reply == nil {
		return "ok", nil
	}
	return f.Reply(instruction, input)
}

// Vector hashes lowercase words of text into dim buckets and normalizes.
func Vector(text string, dim int) []float32 {
	v := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[int(h.Sum32())%dim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
