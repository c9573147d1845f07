package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/server"
	"github.com/spf13/cobra"
)

// backend is the public API as seen by the commands: either the local store
// or a running server.
type backend interface {
	Add(ctx context.Context, in models.ExampleInput, existOK bool) (bool, error)
	AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error)
	Remove(ctx context.Context, key models.Key) error
	Clear(ctx context.Context) error
	Recognize(ctx context.Context, text string, opts intent.Options) (*models.Decision, error)
	Examples(ctx context.Context, q server.ListQuery) ([]server.ExampleView, int, error)
	Status(ctx context.Context) (*server.StatusResponse, error)
	Close() error
}

// openBackend connects to --server when set, otherwise opens local storage.
func openBackend(cmd *cobra.Command, s *settings) (backend, error) {
	if s.serverURL != "" {
		return newRemoteBackend(s.serverURL), nil
	}
	c, err := initializeComponents(cmd.Context(), s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	return &localBackend{Components: c, settings: s}, nil
}

type localBackend struct {
	*Components
	settings *settings
}

func (b *localBackend) Add(ctx context.Context, in models.ExampleInput, existOK bool) (bool, error) {
	return b.Pipeline.Add(ctx, in, existOK)
}

func (b *localBackend) AddBatch(ctx context.Context, inputs []models.ExampleInput, existOK bool) (int, error) {
	return b.Pipeline.AddBatch(ctx, inputs, existOK)
}

func (b *localBackend) Remove(ctx context.Context, key models.Key) error {
	return b.Pipeline.Remove(ctx, key)
}

func (b *localBackend) Clear(ctx context.Context) error {
	return b.Pipeline.Clear(ctx)
}

func (b *localBackend) Recognize(ctx context.Context, text string, opts intent.Options) (*models.Decision, error) {
	return b.Pipeline.Recognize(ctx, text, opts)
}

func (b *localBackend) Examples(ctx context.Context, q server.ListQuery) ([]server.ExampleView, int, error) {
	if b.Engine == nil {
		return nil, 0, fmt.Errorf("%w: examples are not used in classifier mode", models.ErrInvalidArgument)
	}
	views, err := server.ListExamples(ctx, b.Engine, q)
	if err != nil {
		return nil, 0, err
	}
	return views, b.Engine.Size(), nil
}

func (b *localBackend) Status(context.Context) (*server.StatusResponse, error) {
	return server.BuildStatus(b.Pipeline, b.Engine, b.settings.cfg, b.settings.logger), nil
}

func (b *localBackend) Close() error {
	b.Components.Close()
	return nil
}
