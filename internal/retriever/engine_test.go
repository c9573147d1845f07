package retriever

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/shikibetsu/internal/embedding"
	"github.com/hyperjump/shikibetsu/internal/keyword"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/storage"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 512

type fixture struct {
	dir     string
	dataset storage.Dataset
	engine  *Engine
	// build overrides the default ivf builder.
	build vector.Builder
}

func (f *fixture) indexPath() string { return filepath.Join(f.dir, "intent.idx") }

func (f *fixture) datasetPath() string { return filepath.Join(f.dir, "examples.db") }

// open (re)creates the dataset and engine over the fixture directory.
func (f *fixture) open(t *testing.T, opts Options, options ...Option) {
	t.Helper()
	ds, err := storage.NewSQLiteDataset(f.datasetPath())
	require.NoError(t, err)
	opts.IndexPath = f.indexPath()
	build := f.build
	if build == nil {
		build = vector.NewBuilder("ivf", testDim, vector.Params{})
	}
	eng, err := New(context.Background(), ds, embedding.NewHashingEmbedder(testDim), build, opts, options...)
	require.NoError(t, err)
	f.dataset, f.engine = ds, eng
}

func (f *fixture) close() {
	if f.engine != nil {
		_ = f.engine.Close()
	}
	if f.dataset != nil {
		_ = f.dataset.Close()
	}
	f.engine, f.dataset = nil, nil
}

func newFixture(t *testing.T, opts Options, options ...Option) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}
	f.open(t, opts, options...)
	t.Cleanup(f.close)
	return f
}

func in(text, label string) models.ExampleInput {
	return models.ExampleInput{Text: text, Label: label}
}

func threshold(v float64) *float64 { return &v }

func numbered(n int) []models.ExampleInput {
	out := make([]models.ExampleInput, n)
	for i := range out {
		out[i] = in(fmt.Sprintf("utterance number %d about topic %d", i, i%3), fmt.Sprintf("intent-%d", i%3))
	}
	return out
}

func (f *fixture) assertCounts(t *testing.T, want int) {
	t.Helper()
	n, err := f.dataset.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, f.engine.Size(), "store size")
	assert.Equal(t, want, n, "dataset count")
	assert.Equal(t, want, f.engine.snapshot().index.Size(), "index size")
}

func TestEngine_CountInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.assertCounts(t, 0)

	added, err := f.engine.Add(ctx, in("Tell me today's weather", "weather"), false)
	require.NoError(t, err)
	assert.True(t, added)
	f.assertCounts(t, 1)

	n, err := f.engine.AddBatch(ctx, numbered(12), false)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	f.assertCounts(t, 13)

	require.NoError(t, f.engine.Remove(ctx, models.Key{Text: "Tell me today's weather", Label: "weather"}))
	f.assertCounts(t, 12)

	require.NoError(t, f.engine.Clear(ctx))
	f.assertCounts(t, 0)
	assert.False(t, f.engine.snapshot().index.Trained())
}

func TestEngine_DuplicatePolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	_, err := f.engine.Add(ctx, in("hello", "greet"), false)
	require.NoError(t, err)

	_, err = f.engine.Add(ctx, in("hello", "greet"), false)
	assert.ErrorIs(t, err, models.ErrDuplicateExample)

	added, err := f.engine.Add(ctx, in(" hello ", "greet"), true)
	require.NoError(t, err)
	assert.False(t, added, "existOK duplicate is a no-op")

	// Same text under another label is a different example.
	added, err = f.engine.Add(ctx, in("hello", "smalltalk"), false)
	require.NoError(t, err)
	assert.True(t, added)
	f.assertCounts(t, 2)

	// A duplicate anywhere in the batch aborts the whole batch.
	_, err = f.engine.AddBatch(ctx, []models.ExampleInput{in("hi", "greet"), in("hello", "greet")}, false)
	assert.ErrorIs(t, err, models.ErrDuplicateExample)
	_, err = f.engine.AddBatch(ctx, []models.ExampleInput{in("hey", "greet"), in("hey", "greet")}, false)
	assert.ErrorIs(t, err, models.ErrDuplicateExample)
	f.assertCounts(t, 2)

	n, err := f.engine.AddBatch(ctx, []models.ExampleInput{in("hi", "greet"), in("hello", "greet"), in("hi", "greet")}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.assertCounts(t, 3)
}

func TestEngine_InvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.engine.Add(ctx, in("  ", "greet"), false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.AddBatch(ctx, []models.ExampleInput{in("ok", "greet"), in("text", "")}, false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	f.assertCounts(t, 0)
}

func TestEngine_RemoveNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	_, err := f.engine.AddBatch(ctx, []models.ExampleInput{in("a b", "x"), in("c d", "y")}, false)
	require.NoError(t, err)

	require.NoError(t, f.engine.Remove(ctx, models.Key{Text: "a b", Label: "x"}))
	assert.Equal(t, 1, f.engine.Size())
	assert.Equal(t, []string{"y"}, f.engine.Labels())

	err = f.engine.Remove(ctx, models.Key{Text: "a b", Label: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	err = f.engine.Remove(ctx, models.Key{Text: "c d", Label: "x"})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, f.engine.Size())

	require.NoError(t, f.engine.Remove(ctx, models.Key{Text: "c d", Label: "y"}))
	f.assertCounts(t, 0)
	_, err = f.engine.Recognize(ctx, "c d", RecognizeOptions{})
	assert.ErrorIs(t, err, vector.ErrEmptyIndex)
}

func TestEngine_RecognizeEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.engine.Recognize(context.Background(), "anything", RecognizeOptions{})
	assert.ErrorIs(t, err, vector.ErrEmptyIndex)
	// Emptiness is reported before the voting mode is validated.
	_, err = f.engine.Recognize(context.Background(), "anything", RecognizeOptions{Voting: "majority"})
	assert.ErrorIs(t, err, vector.ErrEmptyIndex)
}

func addWeatherRestaurant(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.Add(context.Background(), in("Tell me today's weather", "weather"), false)
	require.NoError(t, err)
	_, err = e.Add(context.Background(), in("Tell me good restaurant.", "restaurant"), false)
	require.NoError(t, err)
}

func TestEngine_RecognizeInvalidVoting(t *testing.T) {
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	_, err := f.engine.Recognize(context.Background(), "weather", RecognizeOptions{Voting: "majority"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestEngine_FallbackThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)

	rec, err := f.engine.Recognize(ctx, "Tell me tomorrow's weather", RecognizeOptions{})
	require.NoError(t, err)
	assert.False(t, rec.Fallback)
	assert.Equal(t, "weather", rec.Label)
	require.Len(t, rec.Neighbors, 2)
	assert.InDelta(t, 0.75, rec.Neighbors[0].Similarity, 1e-5)
	assert.InDelta(t, 0.5, rec.Neighbors[1].Similarity, 1e-5)
	assert.Equal(t, "Tell me today's weather", rec.Neighbors[0].Text)

	rec, err = f.engine.Recognize(ctx, "completely unrelated words here", RecognizeOptions{})
	require.NoError(t, err)
	assert.True(t, rec.Fallback)
	assert.Equal(t, models.FallbackLabel, rec.Label)
	assert.NotEmpty(t, rec.Winner, "winner is kept under fallback")
	assert.Len(t, rec.Scores, 2, "scores are kept under fallback")
}

func TestEngine_FallbackThresholdConfigurable(t *testing.T) {
	f := newFixture(t, Options{FallbackThreshold: threshold(0.8)})
	addWeatherRestaurant(t, f.engine)

	rec, err := f.engine.Recognize(context.Background(), "Tell me tomorrow's weather", RecognizeOptions{})
	require.NoError(t, err)
	assert.True(t, rec.Fallback, "0.75 is below a 0.8 threshold")
	assert.Equal(t, models.FallbackLabel, rec.Label)
	assert.Equal(t, "weather", rec.Winner)
	assert.InDelta(t, 0.75, rec.Scores["weather"], 1e-5)
}

func TestEngine_FallbackThresholdZeroDisables(t *testing.T) {
	f := newFixture(t, Options{FallbackThreshold: threshold(0)})
	addWeatherRestaurant(t, f.engine)

	rec, err := f.engine.Recognize(context.Background(), "completely unrelated words here", RecognizeOptions{})
	require.NoError(t, err)
	assert.False(t, rec.Fallback)
	assert.Equal(t, rec.Winner, rec.Label)
}

func TestEngine_VotingEquivalentAtTopKOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	_, err := f.engine.AddBatch(ctx, numbered(15), false)
	require.NoError(t, err)

	queries := []string{
		"Tell me tomorrow's weather",
		"good restaurant nearby",
		"utterance number 4",
		"topic 2",
		"nothing in common",
	}
	for _, q := range queries {
		soft, err := f.engine.Recognize(ctx, q, RecognizeOptions{Voting: models.VotingSoft, TopK: 1})
		require.NoError(t, err)
		hard, err := f.engine.Recognize(ctx, q, RecognizeOptions{Voting: models.VotingHard, TopK: 1})
		require.NoError(t, err)
		assert.Equal(t, soft.Label, hard.Label, q)
		assert.Equal(t, soft.Winner, hard.Winner, q)
		assert.Len(t, soft.Neighbors, 1)
	}
}

func TestEngine_TopKClamped(t *testing.T) {
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	rec, err := f.engine.Recognize(context.Background(), "Tell me", RecognizeOptions{TopK: 50})
	require.NoError(t, err)
	assert.Len(t, rec.Neighbors, 2)
}

func TestEngine_SizingBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	inputs := numbered(20)

	_, err := f.engine.AddBatch(ctx, inputs[:19], false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.engine.NList())
	f.assertCounts(t, 19)

	_, err = f.engine.Add(ctx, inputs[19], false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.engine.NList())
	f.assertCounts(t, 20)

	rec, err := f.engine.Recognize(ctx, inputs[7].Text, RecognizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, inputs[7].Label, rec.Label)

	require.NoError(t, f.engine.Remove(ctx, inputs[0].Key()))
	assert.Equal(t, 1, f.engine.NList())
	f.assertCounts(t, 19)
}

func TestEngine_PersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	_, err := f.engine.AddBatch(ctx, numbered(23), false)
	require.NoError(t, err)

	queries := []string{"Tell me tomorrow's weather", "utterance number 11", "topic 1 please"}
	before := make([]*models.Recognition, len(queries))
	for i, q := range queries {
		before[i], err = f.engine.Recognize(ctx, q, RecognizeOptions{TopK: 3})
		require.NoError(t, err)
	}
	examples := f.engine.Examples()
	nlist := f.engine.NList()

	f.close()
	_, err = os.Stat(f.indexPath())
	require.NoError(t, err, "snapshot written")
	_, err = os.Stat(f.indexPath() + ".tmp")
	assert.True(t, os.IsNotExist(err), "no temp snapshot left behind")

	f.open(t, Options{})
	assert.Equal(t, examples, f.engine.Examples())
	assert.Equal(t, nlist, f.engine.NList())
	for i, q := range queries {
		after, err := f.engine.Recognize(ctx, q, RecognizeOptions{TopK: 3})
		require.NoError(t, err)
		assert.Equal(t, before[i], after, q)
	}
}

func TestEngine_RebuildsInconsistentSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	f.close()

	// Dataset moves ahead of the snapshot.
	ds, err := storage.NewSQLiteDataset(f.datasetPath())
	require.NoError(t, err)
	vec, _ := embedding.NewHashingEmbedder(testDim).Embed(ctx, "Is it raining")
	require.NoError(t, ds.Append(ctx, []models.Example{{Text: "Is it raining", Label: "weather", Vector: vec}}))
	require.NoError(t, ds.Close())

	f.open(t, Options{})
	f.assertCounts(t, 3)
	rec, err := f.engine.Recognize(ctx, "Is it raining", RecognizeOptions{TopK: 1})
	require.NoError(t, err)
	assert.Equal(t, "weather", rec.Label)
	f.close()

	require.NoError(t, os.WriteFile(f.indexPath(), []byte("garbage"), 0644))
	f.open(t, Options{})
	f.assertCounts(t, 3)
}

func TestEngine_DimensionMismatchOnLoad(t *testing.T) {
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	f.close()

	ds, err := storage.NewSQLiteDataset(f.datasetPath())
	require.NoError(t, err)
	defer ds.Close()
	build := vector.NewBuilder("ivf", 64, vector.Params{})
	_, err = New(context.Background(), ds, embedding.NewHashingEmbedder(64), build, Options{IndexPath: f.indexPath()})
	assert.Error(t, err)
}

type failingDataset struct {
	storage.Dataset
}

func (failingDataset) Append(context.Context, []models.Example) error {
	return errors.New("disk full")
}

func TestEngine_FailedCommitLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	f.engine.dataset = failingDataset{Dataset: f.dataset}

	_, err := f.engine.Add(ctx, in("Is it raining", "weather"), false)
	require.Error(t, err)
	assert.Equal(t, 2, f.engine.Size())
	assert.Equal(t, 2, f.engine.snapshot().index.Size())
	_, err = os.Stat(f.indexPath() + ".tmp")
	assert.True(t, os.IsNotExist(err))

	f.engine.dataset = f.dataset
	f.assertCounts(t, 2)
}

func TestEngine_SnapshotInstallFailureKeepsMutation(t *testing.T) {
	ctx := context.Background()
	f := &fixture{dir: t.TempDir()}
	// A non-empty directory where the snapshot belongs makes the rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(f.indexPath(), "occupied"), 0755))
	f.open(t, Options{})
	t.Cleanup(f.close)

	added, err := f.engine.Add(ctx, in("hello there", "greet"), false)
	require.NoError(t, err)
	assert.True(t, added)
	f.assertCounts(t, 1)
	_, err = os.Stat(f.indexPath() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp snapshot is cleaned up")

	_, err = f.engine.Add(ctx, in("hello there", "greet"), false)
	assert.ErrorIs(t, err, models.ErrDuplicateExample)

	rec, err := f.engine.Recognize(ctx, "hello there", RecognizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "greet", rec.Label)

	f.close()
	f.open(t, Options{})
	f.assertCounts(t, 1)
}

type buildCounter struct {
	builds, trains, clones int
}

type countingIndex struct {
	vector.VectorIndex
	c *buildCounter
}

func (x *countingIndex) Train(ctx context.Context, vectors [][]float32) error {
	x.c.trains++
	return x.VectorIndex.Train(ctx, vectors)
}

func (x *countingIndex) Clone() (vector.VectorIndex, error) {
	x.c.clones++
	next, err := x.VectorIndex.Clone()
	if err != nil {
		return nil, err
	}
	return &countingIndex{VectorIndex: next, c: x.c}, nil
}

func (c *buildCounter) builder() vector.Builder {
	inner := vector.NewBuilder("ivf", testDim, vector.Params{})
	return func(nlist int) (vector.VectorIndex, error) {
		c.builds++
		idx, err := inner(nlist)
		if err != nil {
			return nil, err
		}
		return &countingIndex{VectorIndex: idx, c: c}, nil
	}
}

func TestEngine_BatchTrainsOnce(t *testing.T) {
	ctx := context.Background()
	counter := &buildCounter{}
	f := &fixture{dir: t.TempDir(), build: counter.builder()}
	f.open(t, Options{})
	t.Cleanup(f.close)
	*counter = buildCounter{}

	n, err := f.engine.AddBatch(ctx, numbered(20), false)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, 2, f.engine.NList())
	assert.Equal(t, buildCounter{builds: 1, trains: 1}, *counter, "one rebuild for the whole batch")

	_, err = f.engine.Add(ctx, in("one more utterance", "intent-0"), false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.engine.NList())
	assert.Equal(t, buildCounter{builds: 1, trains: 1, clones: 1}, *counter, "same nlist extends a copy without retraining")
	f.assertCounts(t, 21)
}

func TestEngine_RebuildsSnapshotWithStaleVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	stale, err := os.ReadFile(f.indexPath())
	require.NoError(t, err)

	require.NoError(t, f.engine.Remove(ctx, models.Key{Text: "Tell me today's weather", Label: "weather"}))
	_, err = f.engine.Add(ctx, in("Play some jazz music", "music"), false)
	require.NoError(t, err)
	f.close()

	// Same size and nlist as the dataset, but positions hold other vectors.
	require.NoError(t, os.WriteFile(f.indexPath(), stale, 0644))
	f.open(t, Options{})

	rec, err := f.engine.Recognize(ctx, "Play some jazz music", RecognizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "music", rec.Label)
	assert.Equal(t, "Play some jazz music", rec.Neighbors[0].Text)
	assert.InDelta(t, 1.0, rec.Neighbors[0].Similarity, 1e-5)
}

func TestEngine_LabelsAndFind(t *testing.T) {
	ctx := context.Background()
	finder, err := keyword.NewFinder()
	require.NoError(t, err)
	f := newFixture(t, Options{}, WithFinder(finder))
	addWeatherRestaurant(t, f.engine)
	_, err = f.engine.Add(ctx, in("Is it raining", "weather"), false)
	require.NoError(t, err)

	assert.Equal(t, []string{"weather", "restaurant"}, f.engine.Labels())
	assert.True(t, f.engine.Contains("restaurant", "weather"))
	assert.False(t, f.engine.Contains("weather", "music"))

	found, err := f.engine.Find(ctx, "raining", 10, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Is it raining", found[0].Text)

	require.NoError(t, f.engine.Remove(ctx, found[0].Key()))
	found, err = f.engine.Find(ctx, "raining", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestEngine_FinderRebuiltOnLoad(t *testing.T) {
	finder, err := keyword.NewFinder()
	require.NoError(t, err)
	f := newFixture(t, Options{}, WithFinder(finder))
	addWeatherRestaurant(t, f.engine)
	f.close()

	finder, err = keyword.NewFinder()
	require.NoError(t, err)
	f.open(t, Options{}, WithFinder(finder))
	found, err := f.engine.Find(context.Background(), "restaurant", 5, nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestEngine_ConcurrentReadsDuringWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	addWeatherRestaurant(t, f.engine)
	inputs := numbered(30)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, x := range inputs {
			if _, err := f.engine.Add(ctx, x, false); err != nil {
				errs <- err
				return
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				rec, err := f.engine.Recognize(ctx, "Tell me tomorrow's weather", RecognizeOptions{})
				if err != nil {
					errs <- err
					return
				}
				if rec.Winner == "" {
					errs <- errors.New("empty winner")
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	f.assertCounts(t, 32)
}
