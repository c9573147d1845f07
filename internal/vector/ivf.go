package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var ivfMagic = [4]byte{'I', 'V', 'F', '1'}

// IVFIndex is a pure-Go inverted-file index with flat (uncompressed) cell lists.
// Queries scan the NProbe cells whose centroids are closest to the query.
// With NList 1 it is an exact linear scan.
type IVFIndex struct {
	dimensions int
	params     Params
	centroids  [][]float32
	vectors    [][]float32 // by position
	lists      [][]int     // cell -> positions, ascending
	trained    bool
	mu         sync.RWMutex
}

// NewIVFIndex creates an untrained IVF index.
func NewIVFIndex(dimensions int, params Params) (*IVFIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &IVFIndex{dimensions: dimensions, params: params.withDefaults()}, nil
}

// Type returns the index type identifier.
func (x *IVFIndex) Type() string {
	return string(IndexTypeIVF)
}

// Train fits NList centroids with spherical k-means.
func (x *IVFIndex) Train(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no training vectors", ErrUntrainable)
	}
	if len(vectors) < x.params.NList {
		return fmt.Errorf("%w: %d vectors for %d cells", ErrUntrainable, len(vectors), x.params.NList)
	}
	for _, v := range vectors {
		if len(v) != x.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), x.dimensions)
		}
	}
	centroids, err := trainCentroids(ctx, vectors, x.params.NList, x.params.Iterations)
	if err != nil {
		return fmt.Errorf("train centroids: %w", err)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.centroids = centroids
	x.lists = make([][]int, len(centroids))
	for pos, v := range x.vectors {
		c := nearestCentroid(x.centroids, v)
		x.lists[c] = append(x.lists[c], pos)
	}
	x.trained = true
	return nil
}

// Add appends vectors, assigning each to its nearest cell.
func (x *IVFIndex) Add(ctx context.Context, vectors [][]float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.trained {
		return ErrNotTrained
	}
	for _, v := range vectors {
		if len(v) != x.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), x.dimensions)
		}
	}
	for _, v := range vectors {
		vec := make([]float32, x.dimensions)
		copy(vec, v)
		pos := len(x.vectors)
		x.vectors = append(x.vectors, vec)
		c := nearestCentroid(x.centroids, vec)
		x.lists[c] = append(x.lists[c], pos)
	}
	return nil
}

// Search returns up to k vectors by inner product from the NProbe nearest cells.
// Equal scores are ordered by insertion position.
func (x *IVFIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), x.dimensions)
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, nil
	}
	k = min(k, len(x.vectors))

	var candidates []int
	for _, c := range x.probeCells(query) {
		candidates = append(candidates, x.lists[c]...)
	}
	results := make([]*VectorResult, len(candidates))
	for i, pos := range candidates {
		results[i] = &VectorResult{Position: pos, Score: InnerProduct(query, x.vectors[pos])}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (x *IVFIndex) probeCells(query []float32) []int {
	nprobe := min(x.params.NProbe, len(x.centroids))
	if nprobe >= len(x.centroids) {
		cells := make([]int, len(x.centroids))
		for c := range cells {
			cells[c] = c
		}
		return cells
	}
	type cellScore struct {
		cell  int
		score float64
	}
	scores := make([]cellScore, len(x.centroids))
	for c, centroid := range x.centroids {
		scores[c] = cellScore{cell: c, score: InnerProduct(query, centroid)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	cells := make([]int, nprobe)
	for i := range cells {
		cells[i] = scores[i].cell
	}
	return cells
}

// Vector returns the stored vector at pos.
func (x *IVFIndex) Vector(pos int) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if pos < 0 || pos >= len(x.vectors) {
		return nil, false
	}
	return x.vectors[pos], true
}

// Reset discards all vectors and centroids.
func (x *IVFIndex) Reset() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.centroids = nil
	x.vectors = nil
	x.lists = nil
	x.trained = false
	return nil
}

// Clone returns a deep copy of the index.
func (x *IVFIndex) Clone() (VectorIndex, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := &IVFIndex{dimensions: x.dimensions, params: x.params, trained: x.trained}
	out.centroids = make([][]float32, len(x.centroids))
	for i, c := range x.centroids {
		out.centroids[i] = append([]float32(nil), c...)
	}
	// Stored vectors are immutable after Add; only the slice header is copied.
	out.vectors = append([][]float32(nil), x.vectors...)
	out.lists = make([][]int, len(x.lists))
	for i, l := range x.lists {
		out.lists[i] = append([]int(nil), l...)
	}
	return out, nil
}

// Save persists the index to path. Directory is created if needed. Format (little endian):
// magic "IVF1", dimension (4), nlist (4), trained (1), centroids (nlist*dimension*4) when trained,
// n (4), then per vector: cell (4), vector (dimension*4 bytes).
func (x *IVFIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := x.writeTo(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	return f.Close()
}

func (x *IVFIndex) writeTo(w io.Writer) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bw := bufio.NewWriter(w)
	cells := make([]uint32, len(x.vectors))
	for c, l := range x.lists {
		for _, pos := range l {
			cells[pos] = uint32(c)
		}
	}
	var trained uint8
	if x.trained {
		trained = 1
	}
	header := []any{ivfMagic, uint32(x.dimensions), uint32(x.params.NList), trained}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if x.trained {
		for _, c := range x.centroids {
			if _, err := bw.Write(float32SliceToBytes(c)); err != nil {
				return fmt.Errorf("write centroid: %w", err)
			}
		}
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for pos, v := range x.vectors {
		if err := binary.Write(bw, binary.LittleEndian, cells[pos]); err != nil {
			return fmt.Errorf("write cell: %w", err)
		}
		if _, err := bw.Write(float32SliceToBytes(v)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return bw.Flush()
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match;
// nlist is taken from the file. If the file does not exist, no error is returned and the index is unchanged.
func (x *IVFIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	return x.readFrom(bufio.NewReader(f))
}

func (x *IVFIndex) readFrom(r io.Reader) error {
	var magic [4]byte
	var dim, nlist uint32
	var trained uint8
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic != ivfMagic {
		return fmt.Errorf("not an IVF index snapshot")
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != x.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, x.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &nlist); err != nil {
		return fmt.Errorf("read nlist: %w", err)
	}
	if nlist == 0 {
		return fmt.Errorf("invalid nlist 0")
	}
	if err := binary.Read(r, binary.LittleEndian, &trained); err != nil {
		return fmt.Errorf("read trained flag: %w", err)
	}
	buf := make([]byte, x.dimensions*4)
	var centroids [][]float32
	if trained == 1 {
		centroids = make([][]float32, nlist)
		for c := range centroids {
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read centroid: %w", err)
			}
			centroids[c] = bytesToFloat32Slice(buf)
		}
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	if n > 0 && trained != 1 {
		return fmt.Errorf("untrained snapshot holds %d vectors", n)
	}
	vectors := make([][]float32, 0, n)
	lists := make([][]int, len(centroids))
	for pos := 0; pos < int(n); pos++ {
		var cell uint32
		if err := binary.Read(r, binary.LittleEndian, &cell); err != nil {
			return fmt.Errorf("read cell: %w", err)
		}
		if int(cell) >= len(lists) {
			return fmt.Errorf("cell %d out of range", cell)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
		lists[cell] = append(lists[cell], pos)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.params.NList = int(nlist)
	x.params = x.params.withDefaults()
	x.centroids = centroids
	x.vectors = vectors
	x.lists = lists
	x.trained = trained == 1
	return nil
}

// Trained reports whether centroids have been fitted.
func (x *IVFIndex) Trained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.trained
}

// Size returns the number of vectors in the index.
func (x *IVFIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// NList returns the number of partition cells.
func (x *IVFIndex) NList() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.params.NList
}

// Dimensions returns the vector dimension.
func (x *IVFIndex) Dimensions() int {
	return x.dimensions
}

// Close is a no-op for IVFIndex.
func (x *IVFIndex) Close() error {
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
