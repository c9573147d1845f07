package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/cli"
	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/spf13/cobra"
)

// NewRecognizeCmd recognizes the intent of an utterance.
func NewRecognizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recognize <text...>",
		Short: "Recognize the intent of an utterance",
		Example: `  shikibetsu recognize "Tell me tomorrow's weather"
  shikibetsu recognize --detail --candidates weather,restaurant Any good place for dinner?
  shikibetsu recognize --voting hard --output json hello there`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, _ := cmd.Flags().GetBool("detail")
			candidates, _ := cmd.Flags().GetStringSlice("candidates")
			voting, _ := cmd.Flags().GetString("voting")
			text := strings.Join(args, " ")
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				if voting == "" && s.cfg != nil {
					voting = s.cfg.Retriever.Voting
				}
				d, err := b.Recognize(ctx, text, intent.Options{
					Detail:     detail,
					Candidates: candidates,
					Voting:     models.Voting(voting),
				})
				if err != nil {
					return fmt.Errorf("recognize: %w", err)
				}
				return cli.WriteDecision(cmd.OutOrStdout(), d, s.format)
			})
		},
	}
	cmd.Flags().Bool("detail", false, "show neighbours and per-label scores")
	cmd.Flags().StringSlice("candidates", nil, "candidate labels (comma separated)")
	cmd.Flags().String("voting", "", "neighbour voting: soft or hard (default from config)")
	return cmd
}

// NewStatusCmd shows the store status.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show example, index and storage status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				st, err := b.Status(ctx)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				return cli.WriteStatus(cmd.OutOrStdout(), st, s.format)
			})
		},
	}
}
