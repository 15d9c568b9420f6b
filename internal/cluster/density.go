package cluster

// Density is a DBSCAN-style policy under cosine distance. A point is a core
// point when at least MinSamples points (itself included) lie within Epsilon.
// Clusters grow from core points in index order, so results depend only on
// input order and parameters.
type Density struct {
	Epsilon    float64
	MinSamples int
}

func (d *Density) Name() string { return "density" }

func (d *Density) Assign(vectors [][]float64, minClusterSize int) []int {
	minPts := d.MinSamples
	if minPts <= 0 {
		minPts = minClusterSize
	}
	n := len(vectors)
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if cosineDistance(vectors[i], vectors[j]) <= d.Epsilon {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	labels := make([]int, n)
	visited := make([]bool, n)
	for i := range labels {
		labels[i] = Noise
	}

	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		if len(neighbors[i]) < minPts {
			continue
		}
		id := next
		next++
		labels[i] = id
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] == Noise {
				labels[j] = id
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			if len(neighbors[j]) >= minPts {
				queue = append(queue, neighbors[j]...)
			}
		}
	}
	return labels
}
