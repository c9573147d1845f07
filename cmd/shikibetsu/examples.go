package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/cli"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/server"
	"github.com/spf13/cobra"
)

// withBackend resolves settings, opens the backend, and runs fn.
func withBackend(cmd *cobra.Command, fn func(ctx context.Context, s *settings, b backend) error) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.logger.Sync() }()
	b, err := openBackend(cmd, s)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(cmd.Context(), s, b)
}

// exampleFromArgs reads "<label> <text...>" into a validated example.
func exampleFromArgs(args []string) (models.ExampleInput, error) {
	in := models.ExampleInput{Label: args[0], Text: strings.Join(args[1:], " ")}
	if err := in.Validate(); err != nil {
		return in, err
	}
	return in, nil
}

// NewAddCmd adds one example.
func NewAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <label> <text...>",
		Short: "Add a labeled example",
		Example: `  shikibetsu add weather "Tell me today's weather"
  shikibetsu add --exist-ok restaurant Tell me good restaurant.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			existOK, _ := cmd.Flags().GetBool("exist-ok")
			in, err := exampleFromArgs(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				added, err := b.Add(ctx, in, existOK)
				if err != nil {
					return fmt.Errorf("add example: %w", err)
				}
				status := "added"
				if !added {
					status = "exists"
				}
				if s.format == cli.OutputJSON {
					return writeJSON(cmd, map[string]interface{}{"status": status, "id": in.Key().ID()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status, in.Key())
				return nil
			})
		},
	}
	cmd.Flags().Bool("exist-ok", false, "succeed without changes when the example already exists")
	return cmd
}

// NewRemoveCmd removes one example.
func NewRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <label> <text...>",
		Aliases: []string{"rm"},
		Short:   "Remove a labeled example",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := exampleFromArgs(args)
			if err != nil {
				return err
			}
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				if err := b.Remove(ctx, in.Key()); err != nil {
					return fmt.Errorf("remove example: %w", err)
				}
				if s.format == cli.OutputJSON {
					return writeJSON(cmd, map[string]string{"status": "removed", "id": in.Key().ID()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", in.Key())
				return nil
			})
		},
	}
}

// NewClearCmd removes every example.
func NewClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all examples and reset the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				if err := b.Clear(ctx); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				if s.format == cli.OutputJSON {
					return writeJSON(cmd, map[string]string{"status": "cleared"})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cleared")
				return nil
			})
		},
	}
}

// NewExamplesCmd lists examples or looks them up by keyword.
func NewExamplesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "examples [query...]",
		Short: "List stored examples, or find them by keyword",
		Example: `  shikibetsu examples
  shikibetsu examples --label weather
  shikibetsu examples --fuzzy restaurnt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			label, _ := cmd.Flags().GetString("label")
			limit, _ := cmd.Flags().GetInt("limit")
			fuzzy, _ := cmd.Flags().GetBool("fuzzy")
			q := server.ListQuery{Query: strings.Join(args, " "), Label: label, Limit: limit, Fuzzy: fuzzy}
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				views, total, err := b.Examples(ctx, q)
				if err != nil {
					return fmt.Errorf("list examples: %w", err)
				}
				return cli.WriteExamples(cmd.OutOrStdout(), views, total, s.format)
			})
		},
	}
	cmd.Flags().String("label", "", "only examples with this label")
	cmd.Flags().Int("limit", 100, "maximum number of examples")
	cmd.Flags().Bool("fuzzy", false, "tolerate typos in the query")
	return cmd
}
