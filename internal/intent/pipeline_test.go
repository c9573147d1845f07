package intent

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/shikibetsu/internal/embedding"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/retriever"
	"github.com/hyperjump/shikibetsu/internal/storage"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedScorer returns fixed scores and records the labels it was asked about.
type scriptedScorer struct {
	scores map[string]float64
	err    error
	calls  atomic.Int32
	labels []string
}

func (s *scriptedScorer) Score(_ context.Context, _ string, labels []string) (map[string]float64, error) {
	s.calls.Add(1)
	s.labels = labels
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]float64, len(labels))
	for _, l := range labels {
		out[l] = s.scores[l]
	}
	return out, nil
}

func (s *scriptedScorer) Close() error { return nil }

func newEngine(t *testing.T) *retriever.Engine {
	t.Helper()
	dir := t.TempDir()
	ds, err := storage.NewSQLiteDataset(filepath.Join(dir, "examples.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	const dim = 512
	eng, err := retriever.New(context.Background(), ds, embedding.NewHashingEmbedder(dim),
		vector.NewBuilder("ivf", dim, vector.Params{}), retriever.Options{IndexPath: filepath.Join(dir, "intent.idx")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func seededPipeline(t *testing.T, mode Mode, scorer *scriptedScorer, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(mode, newEngine(t), scorer, opts...)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = p.Add(ctx, models.ExampleInput{Text: "Tell me today's weather", Label: "weather"}, false)
	require.NoError(t, err)
	_, err = p.Add(ctx, models.ExampleInput{Text: "Tell me good restaurant.", Label: "restaurant"}, false)
	require.NoError(t, err)
	return p
}

func TestPipeline_EnsembleAgreement(t *testing.T) {
	ctx := context.Background()
	candidates := []string{"weather", "restaurant"}

	t.Run("agree", func(t *testing.T) {
		scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.93, "restaurant": 0.02}}
		p := seededPipeline(t, ModeBoth, scorer)
		d, err := p.Recognize(ctx, "Tell me tomorrow's weather", Options{Candidates: candidates, Detail: true})
		require.NoError(t, err)
		assert.Equal(t, "weather", d.Label)
		require.NotNil(t, d.Retriever)
		assert.Equal(t, "weather", d.Retriever.Winner)
		assert.False(t, d.Retriever.Fallback)
	})

	t.Run("disagree", func(t *testing.T) {
		scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.1, "restaurant": 0.8}}
		p := seededPipeline(t, ModeBoth, scorer)
		d, err := p.Recognize(ctx, "Tell me tomorrow's weather", Options{Candidates: candidates, Detail: true})
		require.NoError(t, err)
		assert.Equal(t, models.FallbackLabel, d.Label)
		assert.Equal(t, "weather", d.Retriever.Winner)
	})
}

func TestPipeline_DetailSumsScores(t *testing.T) {
	scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.9, "restaurant": 0.123456789}}
	p := seededPipeline(t, ModeBoth, scorer)
	d, err := p.Recognize(context.Background(), "Tell me tomorrow's weather", Options{Detail: true})
	require.NoError(t, err)
	require.Len(t, d.Scores, 2)
	assert.Equal(t, "weather", d.Scores[0].Label)
	assert.InDelta(t, 0.75+0.9, d.Scores[0].Score, 1e-4)
	assert.InDelta(t, 0.5+0.12346, d.Scores[1].Score, 1e-4)
	assert.Equal(t, 0.12346, d.Classifier["restaurant"], "classifier scores rounded to 5 places")

	d, err = p.Recognize(context.Background(), "Tell me tomorrow's weather", Options{})
	require.NoError(t, err)
	assert.Nil(t, d.Scores)
	assert.Nil(t, d.Retriever)
}

func TestPipeline_DefaultCandidatesAreStoredLabels(t *testing.T) {
	scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.9}}
	p := seededPipeline(t, ModeBoth, scorer)
	_, err := p.Recognize(context.Background(), "Tell me tomorrow's weather", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"weather", "restaurant"}, scorer.labels)
}

func TestPipeline_UnknownCandidate(t *testing.T) {
	scorer := &scriptedScorer{}
	p := seededPipeline(t, ModeBoth, scorer)
	_, err := p.Recognize(context.Background(), "hello", Options{Candidates: []string{"weather", "music"}})
	assert.ErrorIs(t, err, models.ErrUnknownIntent)
	assert.Zero(t, scorer.calls.Load(), "scorer not called for invalid candidates")
}

func TestPipeline_RetrieverFallbackWins(t *testing.T) {
	scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.99}}
	p := seededPipeline(t, ModeBoth, scorer)
	d, err := p.Recognize(context.Background(), "completely unrelated words here", Options{Candidates: []string{"weather"}})
	require.NoError(t, err)
	assert.Equal(t, models.FallbackLabel, d.Label)
}

func TestPipeline_ClassifierThreshold(t *testing.T) {
	scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.3, "restaurant": 0.1}}
	p := seededPipeline(t, ModeBoth, scorer, WithClassifierThreshold(0.5))
	d, err := p.Recognize(context.Background(), "Tell me tomorrow's weather", Options{})
	require.NoError(t, err)
	assert.Equal(t, models.FallbackLabel, d.Label)
}

func TestPipeline_Errors(t *testing.T) {
	ctx := context.Background()

	p, err := New(ModeBoth, newEngine(t), &scriptedScorer{})
	require.NoError(t, err)
	_, err = p.Recognize(ctx, "hello", Options{})
	assert.ErrorIs(t, err, vector.ErrEmptyIndex)

	scorer := &scriptedScorer{err: errors.New("model offline")}
	p = seededPipeline(t, ModeBoth, scorer)
	_, err = p.Recognize(ctx, "Tell me", Options{Voting: "ranked"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = p.Recognize(ctx, "Tell me", Options{})
	assert.ErrorContains(t, err, "model offline")
}

func TestPipeline_ClassifierMode(t *testing.T) {
	ctx := context.Background()
	scorer := &scriptedScorer{scores: map[string]float64{"weather": 0.2, "restaurant": 0.7}}
	p, err := New(ModeClassifier, nil, scorer)
	require.NoError(t, err)

	_, err = p.Recognize(ctx, "Tell me good restaurant.", Options{})
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "candidates required")

	d, err := p.Recognize(ctx, "Tell me good restaurant.", Options{Candidates: []string{"weather", "restaurant"}, Detail: true})
	require.NoError(t, err)
	assert.Equal(t, "restaurant", d.Label)
	assert.Nil(t, d.Retriever)
	assert.Equal(t, "restaurant", d.Scores[0].Label)

	_, err = p.Add(ctx, models.ExampleInput{Text: "a", Label: "b"}, false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.ErrorIs(t, p.Remove(ctx, models.Key{Text: "a", Label: "b"}), models.ErrInvalidArgument)
	assert.ErrorIs(t, p.Clear(ctx), models.ErrInvalidArgument)
	_, err = p.AddBatch(ctx, nil, false)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.Zero(t, p.Size())
}

func TestPipeline_RetrieverMode(t *testing.T) {
	ctx := context.Background()
	p, err := New(ModeRetriever, newEngine(t), nil)
	require.NoError(t, err)
	_, err = p.AddBatch(ctx, []models.ExampleInput{
		{Text: "Tell me today's weather", Label: "weather"},
		{Text: "Tell me good restaurant.", Label: "restaurant"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Size())

	// Candidates are ignored, even unknown ones.
	d, err := p.Recognize(ctx, "Tell me tomorrow's weather", Options{Candidates: []string{"music"}, Voting: models.VotingHard})
	require.NoError(t, err)
	assert.Equal(t, "weather", d.Label)

	require.NoError(t, p.Remove(ctx, models.Key{Text: "Tell me today's weather", Label: "weather"}))
	assert.Equal(t, 1, p.Size())
	require.NoError(t, p.Clear(ctx))
	assert.Zero(t, p.Size())
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(ModeBoth, nil, &scriptedScorer{})
	assert.Error(t, err)
	_, err = New(ModeClassifier, nil, nil)
	assert.Error(t, err)
	_, err = New(ModeRetriever, nil, nil)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"": ModeBoth, "both": ModeBoth, "clf": ModeClassifier, "Classifier": ModeClassifier,
		"rtv": ModeRetriever, "retriever": ModeRetriever,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("ensemble")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestMerge(t *testing.T) {
	got := Merge(map[string]float64{"a": 0.5, "b": 0.25}, map[string]float64{"b": 0.25, "c": 1})
	assert.Equal(t, []models.LabelScore{{Label: "c", Score: 1}, {Label: "a", Score: 0.5}, {Label: "b", Score: 0.5}}, got)
	assert.Empty(t, Merge())
}
