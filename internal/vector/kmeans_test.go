package vector

import (
	"context"
	"math"
	"testing"
)

func TestTrainCentroids_SeparatesClusters(t *testing.T) {
	vecs := sampleVectors()
	centroids, err := trainCentroids(context.Background(), vecs, 3, DefaultIterations)
	if err != nil {
		t.Fatal(err)
	}
	if len(centroids) != 3 {
		t.Fatalf("got %d centroids", len(centroids))
	}
	for i, c := range centroids {
		if n := L2Norm(c); math.Abs(n-1) > 1e-4 {
			t.Errorf("centroid %d norm=%v, want 1", i, n)
		}
	}
	// Each group of three sample vectors shares a dominant axis and should share a cell.
	for g := 0; g < 3; g++ {
		cell := nearestCentroid(centroids, vecs[g*3])
		for j := 1; j < 3; j++ {
			if got := nearestCentroid(centroids, vecs[g*3+j]); got != cell {
				t.Errorf("group %d vector %d in cell %d, want %d", g, j, got, cell)
			}
		}
	}
}

func TestTrainCentroids_Deterministic(t *testing.T) {
	ctx := context.Background()
	a, _ := trainCentroids(ctx, sampleVectors(), 2, DefaultIterations)
	b, _ := trainCentroids(ctx, sampleVectors(), 2, DefaultIterations)
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Fatalf("centroid %d differs between runs", i)
			}
		}
	}
}

func TestTrainCentroids_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := trainCentroids(ctx, sampleVectors(), 3, DefaultIterations); err == nil {
		t.Error("expected context error")
	}
}
