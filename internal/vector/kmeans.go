package vector

import (
	"context"

	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// trainCentroids runs spherical k-means over vectors and returns k unit-norm centroids.
// Seeds are spread evenly over the input order so training is deterministic.
// Empty clusters keep their previous centroid.
func trainCentroids(ctx context.Context, vectors [][]float32, k, iterations int) ([][]float32, error) {
	n := len(vectors)
	dim := len(vectors[0])
	centroids := make([][]float32, k)
	for c := 0; c < k; c++ {
		centroids[c] = append([]float32(nil), vectors[c*n/k]...)
		utils.NormalizeL2(centroids[c])
	}
	if k == 1 {
		centroids[0] = meanDirection(vectors, dim)
		return centroids, nil
	}

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	sums := make([][]float64, k)
	counts := make([]int, k)
	for iter := 0; iter < iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := 0
		for i, v := range vectors {
			c := nearestCentroid(centroids, v)
			if assign[i] != c {
				assign[i] = c
				changed++
			}
		}
		if changed == 0 {
			break
		}
		for c := range sums {
			sums[c] = make([]float64, dim)
			counts[c] = 0
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for j, x := range v {
				sums[c][j] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			next := make([]float32, dim)
			for j, s := range sums[c] {
				next[j] = float32(s / float64(counts[c]))
			}
			utils.NormalizeL2(next)
			centroids[c] = next
		}
	}
	return centroids, nil
}

func meanDirection(vectors [][]float32, dim int) []float32 {
	sum := make([]float64, dim)
	for _, v := range vectors {
		for j, x := range v {
			sum[j] += float64(x)
		}
	}
	out := make([]float32, dim)
	for j, s := range sum {
		out[j] = float32(s / float64(len(vectors)))
	}
	utils.NormalizeL2(out)
	return out
}
