package normalize

import "github.com/skillgraph/skillgraph/internal/graph"

// noiseLabel marks points that belong to no cluster.
const noiseLabel = -1

// dbscan clusters vectors by cosine distance (1 - cosine similarity)
// and returns one label per input vector. Labels are dense cluster IDs
// starting at 0, or noiseLabel. Plain O(n^2) neighborhood scans; skill
// vocabularies are small enough that an index is not worth it.
func dbscan(vectors [][]float32, eps float64, minPts int) []int {
	labels := make([]int, len(vectors))
	for i := range labels {
		labels[i] = noiseLabel
	}
	visited := make([]bool, len(vectors))

	next := 0
	for i := range vectors {
		if visited[i] {
			continue
		}
		visited[i] = true
		neighbors := regionQuery(vectors, i, eps)
		if len(neighbors) < minPts {
			continue // stays noise unless a later cluster absorbs it
		}
		labels[i] = next
		expandCluster(vectors, labels, visited, neighbors, next, eps, minPts)
		next++
	}
	return labels
}

func expandCluster(vectors [][]float32, labels []int, visited []bool, seeds []int, cluster int, eps float64, minPts int) {
	for at := 0; at < len(seeds); at++ {
		p := seeds[at]
		if !visited[p] {
			visited[p] = true
			if neighbors := regionQuery(vectors, p, eps); len(neighbors) >= minPts {
				seeds = append(seeds, neighbors...)
			}
		}
		if labels[p] == noiseLabel {
			labels[p] = cluster
		}
	}
}

// regionQuery returns every index within eps of vectors[i], including
// i itself.
func regionQuery(vectors [][]float32, i int, eps float64) []int {
	var out []int
	for j := range vectors {
		if 1-graph.Cosine(vectors[i], vectors[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}
