package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperjump/shikibetsu/internal/cli"
	"github.com/hyperjump/shikibetsu/internal/extract"
	"github.com/hyperjump/shikibetsu/internal/indexer"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type importedFile struct {
	Path  string `json:"path"`
	Added int    `json:"added"`
}

// NewImportCmd imports seed files (yaml, json, xlsx, tsv, csv).
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file-or-pattern>...",
		Short: "Import labeled examples from seed files",
		Long: `Import labeled examples from seed files. Each file is added as one batch:
either all of its new examples are stored or none are.

Supported formats: yaml/yml and json (examples or intents lists), xlsx (text and
label columns, sheet name as default label), tsv/txt and csv (text, label rows).
Patterns use ** for recursive matching.`,
		Example: `  shikibetsu import seeds/intents.yaml
  shikibetsu import "seeds/**/*.xlsx"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			existOK, _ := cmd.Flags().GetBool("exist-ok")
			paths, err := extract.Expand(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no seed files match %q", args)
			}
			return withBackend(cmd, func(ctx context.Context, s *settings, b backend) error {
				bar := progressbar.NewOptions(len(paths),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("Importing"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "=",
						SaucerHead:    ">",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
				var files []importedFile
				idx := indexer.NewIndexer(b, extract.NewExtractor(), existOK, indexer.WithLogger(s.logger))
				total, err := idx.IndexPaths(ctx, paths, func(path string, added int) {
					files = append(files, importedFile{Path: path, Added: added})
					_ = bar.Add(1)
				})
				if err != nil {
					return fmt.Errorf("import: %w", err)
				}
				if s.format == cli.OutputJSON {
					return writeJSON(cmd, map[string]interface{}{"files": files, "added": total})
				}
				out := cmd.OutOrStdout()
				for _, f := range files {
					fmt.Fprintf(out, "  %s: %d added\n", f.Path, f.Added)
				}
				fmt.Fprintf(out, "Imported %d examples from %d files\n", total, len(files))
				return nil
			})
		},
	}
	cmd.Flags().Bool("exist-ok", true, "skip examples that already exist instead of failing the file")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
