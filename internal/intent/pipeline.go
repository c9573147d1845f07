// Package intent reconciles the retriever and the zero-shot classifier into one decision.
package intent

import (
	"context"
	"fmt"

	"github.com/hyperjump/shikibetsu/internal/classifier"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/retriever"
	"github.com/hyperjump/shikibetsu/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Retriever is the example store and nearest-neighbour recognizer.
type Retriever interface {
	Add(ctx context.Context, in models.ExampleInput, existOK bool) (bool, error)
	AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error)
	Remove(ctx context.Context, key models.Key) error
	Clear(ctx context.Context) error
	Recognize(ctx context.Context, text string, opts retriever.RecognizeOptions) (*models.Recognition, error)
	Labels() []string
	Size() int
}

var errClassifierMode = fmt.Errorf("%w: examples are not used in classifier mode", models.ErrInvalidArgument)

// Options are per-query settings.
type Options struct {
	// Detail attaches the merged per-label scores and both signals.
	Detail bool
	// Candidates restricts the classifier labels. In both mode every candidate must be a known label.
	Candidates []string
	Voting     models.Voting
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for decision tracing.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClassifierThreshold makes the classifier answer fallback when its best score is below t.
func WithClassifierThreshold(t float64) Option {
	return func(p *Pipeline) { p.classifierThreshold = t }
}

// Pipeline is the public recognition API.
type Pipeline struct {
	mode                Mode
	retriever           Retriever
	scorer              classifier.Scorer
	classifierThreshold float64
	logger              *zap.Logger
}

// New builds a pipeline. The retriever is required unless mode is classifier;
// the scorer is required unless mode is retriever.
func New(mode Mode, r Retriever, s classifier.Scorer, opts ...Option) (*Pipeline, error) {
	if mode.usesRetriever() && r == nil {
		return nil, fmt.Errorf("%s mode requires a retriever", mode)
	}
	if mode.usesClassifier() && s == nil {
		return nil, fmt.Errorf("%s mode requires a classifier", mode)
	}
	p := &Pipeline{mode: mode, retriever: r, scorer: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Mode returns the configured mode.
func (p *Pipeline) Mode() Mode {
	return p.mode
}

// Add stores one example.
func (p *Pipeline) Add(ctx context.Context, in models.ExampleInput, existOK bool) (bool, error) {
	if !p.mode.usesRetriever() {
		return false, errClassifierMode
	}
	return p.retriever.Add(ctx, in, existOK)
}

// AddBatch stores examples all-or-nothing.
func (p *Pipeline) AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error) {
	if !p.mode.usesRetriever() {
		return 0, errClassifierMode
	}
	return p.retriever.AddBatch(ctx, inputs, existOK)
}

// Remove deletes one example.
func (p *Pipeline) Remove(ctx context.Context, key models.Key) error {
	if !p.mode.usesRetriever() {
		return errClassifierMode
	}
	return p.retriever.Remove(ctx, key)
}

// Clear deletes every example.
func (p *Pipeline) Clear(ctx context.Context) error {
	if !p.mode.usesRetriever() {
		return errClassifierMode
	}
	return p.retriever.Clear(ctx)
}

// Size returns the number of stored examples; 0 in classifier mode.
func (p *Pipeline) Size() int {
	if p.retriever == nil {
		return 0
	}
	return p.retriever.Size()
}

// Labels returns the known intent labels.
func (p *Pipeline) Labels() []string {
	if p.retriever == nil {
		return nil
	}
	return p.retriever.Labels()
}

// Recognize returns the intent of text according to the pipeline mode.
func (p *Pipeline) Recognize(ctx context.Context, text string, opts Options) (*models.Decision, error) {
	switch p.mode {
	case ModeClassifier:
		return p.recognizeClassifier(ctx, text, opts)
	case ModeRetriever:
		return p.recognizeRetriever(ctx, text, opts)
	default:
		return p.recognizeBoth(ctx, text, opts)
	}
}

func (p *Pipeline) recognizeClassifier(ctx context.Context, text string, opts Options) (*models.Decision, error) {
	if len(opts.Candidates) == 0 {
		return nil, fmt.Errorf("%w: classifier mode requires candidate labels", models.ErrInvalidArgument)
	}
	scores, err := p.scorer.Score(ctx, text, opts.Candidates)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	d := &models.Decision{Label: p.classifierLabel(scores, opts.Candidates)}
	if opts.Detail {
		d.Classifier = roundScores(scores)
		d.Scores = Merge(d.Classifier)
	}
	return d, nil
}

func (p *Pipeline) recognizeRetriever(ctx context.Context, text string, opts Options) (*models.Decision, error) {
	rec, err := p.retriever.Recognize(ctx, text, retriever.RecognizeOptions{Voting: opts.Voting})
	if err != nil {
		return nil, err
	}
	d := &models.Decision{Label: rec.Label}
	if opts.Detail {
		d.Retriever = rec
		d.Scores = Merge(rec.Scores)
	}
	return d, nil
}

func (p *Pipeline) recognizeBoth(ctx context.Context, text string, opts Options) (*models.Decision, error) {
	if p.retriever.Size() == 0 {
		return nil, vector.ErrEmptyIndex
	}
	if _, err := models.ParseVoting(string(opts.Voting)); err != nil {
		return nil, err
	}
	candidates, err := p.candidates(opts.Candidates)
	if err != nil {
		return nil, err
	}

	var (
		rec    *models.Recognition
		scores map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := p.retriever.Recognize(gctx, text, retriever.RecognizeOptions{Voting: opts.Voting})
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	g.Go(func() error {
		s, err := p.scorer.Score(gctx, text, candidates)
		if err != nil {
			return fmt.Errorf("classifier: %w", err)
		}
		scores = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	clf := p.classifierLabel(scores, candidates)
	label := models.FallbackLabel
	if rec.Label == clf && clf != models.FallbackLabel {
		label = clf
	}
	p.logger.Debug("intent decision",
		zap.String("retriever", rec.Label),
		zap.String("classifier", clf),
		zap.String("label", label))

	d := &models.Decision{Label: label}
	if opts.Detail {
		d.Retriever = rec
		d.Classifier = roundScores(scores)
		d.Scores = Merge(rec.Scores, d.Classifier)
	}
	return d, nil
}

// candidates returns the caller's labels after checking them against the store,
// or every stored label when none were given.
func (p *Pipeline) candidates(requested []string) ([]string, error) {
	known := p.retriever.Labels()
	if len(requested) == 0 {
		if len(known) == 0 {
			return nil, vector.ErrEmptyIndex
		}
		return known, nil
	}
	set := make(map[string]struct{}, len(known))
	for _, l := range known {
		set[l] = struct{}{}
	}
	var unknown []string
	for _, l := range requested {
		if _, ok := set[l]; !ok {
			unknown = append(unknown, l)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownIntent, unknown)
	}
	return requested, nil
}

func (p *Pipeline) classifierLabel(scores map[string]float64, candidates []string) string {
	label, score := classifier.Best(scores, candidates)
	if p.classifierThreshold > 0 && score < p.classifierThreshold {
		return models.FallbackLabel
	}
	return label
}

// Close releases the scorer. The retriever is owned by the caller.
func (p *Pipeline) Close() error {
	if p.scorer == nil {
		return nil
	}
	return p.scorer.Close()
}
