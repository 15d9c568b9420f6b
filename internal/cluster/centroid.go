package cluster

import "math"

const maxIterations = 100

// Centroid is spherical k-means with farthest-point seeding. K of zero picks
// clamp(sqrt(n/2), 3, 20).
type Centroid struct {
	K int
}

func (c *Centroid) Name() string { return "centroid" }

func (c *Centroid) Assign(vectors [][]float64, _ int) []int {
	n := len(vectors)
	k := c.K
	if k <= 0 {
		k = DefaultK(n)
	}
	if k > n {
		k = n
	}

	centroids := seed(vectors, k)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -2
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for ci, cv := range centroids {
				if d := cosineDistance(v, cv); d < bestDist {
					best, bestDist = ci, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		centroids = recompute(vectors, labels, centroids)
	}
	return labels
}

// DefaultK is clamp(int(sqrt(n/2)), 3, 20).
func DefaultK(n int) int {
	k := int(math.Sqrt(float64(n) / 2))
	if k < 3 {
		k = 3
	}
	if k > 20 {
		k = 20
	}
	return k
}

// seed starts from the first point and repeatedly adds the point farthest
// from its nearest centroid, lowest index winning ties.
func seed(vectors [][]float64, k int) [][]float64 {
	centroids := [][]float64{clone(vectors[0])}
	nearest := make([]float64, len(vectors))
	for i, v := range vectors {
		nearest[i] = cosineDistance(v, centroids[0])
	}
	for len(centroids) < k {
		far, farDist := 0, -1.0
		for i, d := range nearest {
			if d > farDist {
				far, farDist = i, d
			}
		}
		c := clone(vectors[far])
		centroids = append(centroids, c)
		for i, v := range vectors {
			if d := cosineDistance(v, c); d < nearest[i] {
				nearest[i] = d
			}
		}
	}
	return centroids
}

func recompute(vectors [][]float64, labels []int, prev [][]float64) [][]float64 {
	dim := len(vectors[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, v := range vectors {
		l := labels[i]
		counts[l]++
		for d, x := range v {
			sums[l][d] += x
		}
	}
	out := make([][]float64, len(prev))
	for i := range sums {
		if counts[i] == 0 {
			out[i] = prev[i]
			continue
		}
		var norm float64
		for _, x := range sums[i] {
			norm += x * x
		}
		if norm == 0 {
			out[i] = prev[i]
			continue
		}
		norm = math.Sqrt(norm)
		for d := range sums[i] {
			sums[i][d] /= norm
		}
		out[i] = sums[i]
	}
	return out
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
