package vector

import "math"

// InnerProduct is the dot product of a and b, accumulated in float64.
// On unit vectors it is the cosine similarity. Mismatched or empty inputs score 0.
func InnerProduct(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	b = b[:len(a)]
	var sum float64
	for i, x := range a {
		sum += float64(x) * float64(b[i])
	}
	return sum
}

// L2Norm is the Euclidean length of v.
func L2Norm(v []float32) float64 {
	return math.Sqrt(InnerProduct(v, v))
}

// nearestCentroid picks the centroid with the highest inner product with v,
// preferring the lowest index on ties.
func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for c := range centroids {
		if s := InnerProduct(centroids[c], v); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}
