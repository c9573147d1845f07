package vector

const (
	// DefaultCellSize is the target number of vectors per partition cell.
	DefaultCellSize = 10
	// DefaultNProbe is the number of cells scanned per query.
	DefaultNProbe = 8
	// DefaultIterations bounds k-means training.
	DefaultIterations = 20
)

// NList returns the number of partition cells for n vectors: max(1, n/cellSize).
// A non-positive cellSize uses DefaultCellSize.
func NList(n, cellSize int) int {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return max(1, n/cellSize)
}
