// Package cluster groups chunk embeddings into topic clusters.
package cluster

import (
	"fmt"
	"math"

	"github.com/bull/coursemap/internal/course"
)

// Noise marks a point that belongs to no cluster.
const Noise = -1

// MinSessions is the fewest distinct sessions that can yield a cross-lecture topic.
const MinSessions = 3

// Point is one embedding with the session it came from.
type Point struct {
	SessionID string
	Vector    []float32
}

// Strategy assigns a raw cluster label (or Noise) to every point. Labels need
// not be contiguous; the Engine canonicalizes them.
type Strategy interface {
	Name() string
	Assign(vectors [][]float64, minClusterSize int) []int
}

// Config selects the strategy and its parameters.
type Config struct {
	Method     string // density | centroid
	MinSamples int
	Epsilon    float64
	Clusters   int
}

// Engine validates input, runs a strategy and returns canonical labels.
type Engine struct {
	strategy Strategy
}

// New builds an Engine for cfg.Method.
func New(cfg Config) (*Engine, error) {
	switch cfg.Method {
	case "density", "":
		eps := cfg.Epsilon
		if eps <= 0 {
			eps = 0.35
		}
		return &Engine{strategy: &Density{Epsilon: eps, MinSamples: cfg.MinSamples}}, nil
	case "centroid":
		return &Engine{strategy: &Centroid{K: cfg.Clusters}}, nil
	default:
		return nil, course.ErrorfInput("unknown clustering method %q", cfg.Method)
	}
}

// NewWithStrategy wraps an explicit strategy.
func NewWithStrategy(s Strategy) *Engine {
	return &Engine{strategy: s}
}

func (e *Engine) Method() string { return e.strategy.Name() }

// Cluster returns one label per point, index-aligned. Cluster ids are
// 0..n-1 numbered in order of each cluster's first member; clusters smaller
// than minClusterSize are demoted to Noise.
func (e *Engine) Cluster(points []Point, minClusterSize int) ([]int, error) {
	if minClusterSize < 2 {
		return nil, course.ErrorfInput("min_cluster_size must be at least 2, got %d", minClusterSize)
	}
	sessions := make(map[string]struct{})
	for _, p := range points {
		sessions[p.SessionID] = struct{}{}
	}
	if len(sessions) < MinSessions {
		return nil, fmt.Errorf("%w: %d distinct sessions, need %d", course.ErrInsufficientSessions, len(sessions), MinSessions)
	}
	if len(points) < minClusterSize {
		return nil, fmt.Errorf("%w: %d chunks, need at least %d", course.ErrInsufficientData, len(points), minClusterSize)
	}

	dim := len(points[0].Vector)
	vectors := make([][]float64, len(points))
	for i, p := range points {
		if len(p.Vector) != dim || dim == 0 {
			return nil, fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				course.ErrEmbeddingDimensionMismatch, i, len(p.Vector), dim)
		}
		vectors[i] = normalize(p.Vector)
	}

	labels := e.strategy.Assign(vectors, minClusterSize)
	return canonicalize(labels, minClusterSize), nil
}

// canonicalize drops undersized clusters and renumbers the rest by first
// appearance.
func canonicalize(labels []int, minClusterSize int) []int {
	sizes := make(map[int]int)
	for _, l := range labels {
		if l != Noise {
			sizes[l]++
		}
	}
	next := 0
	remap := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l == Noise || sizes[l] < minClusterSize {
			out[i] = Noise
			continue
		}
		id, ok := remap[l]
		if !ok {
			id = next
			remap[l] = id
			next++
		}
		out[i] = id
	}
	return out
}

// Count returns the number of clusters and noise points in labels.
func Count(labels []int) (clusters, noise int) {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l == Noise {
			noise++
			continue
		}
		seen[l] = struct{}{}
	}
	return len(seen), noise
}

func normalize(v []float32) []float64 {
	out := make([]float64, len(v))
	var norm float64
	for i, x := range v {
		out[i] = float64(x)
		norm += out[i] * out[i]
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// cosineDistance assumes unit vectors.
func cosineDistance(a, b []float64) float64 {
	return 1 - dot(a, b)
}
