package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/shikibetsu/internal/cli"
	"github.com/hyperjump/shikibetsu/internal/config"
	"github.com/hyperjump/shikibetsu/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultConfigPath = "/usr/local/etc/shikibetsu/config.yaml"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "shikibetsu",
		Short:         "Intent recognition over labeled examples",
		Long:          `Recognize the intent of short utterances with a nearest-neighbour retriever over labeled examples and a zero-shot classifier.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	root.PersistentFlags().String("config", defaultConfigPath, "config file path")
	root.PersistentFlags().String("server", "", "server URL; empty operates directly on local storage")
	root.PersistentFlags().String("output", "text", "output format: text or json")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(
		NewServerCmd(),
		NewAddCmd(),
		NewRemoveCmd(),
		NewClearCmd(),
		NewRecognizeCmd(),
		NewExamplesCmd(),
		NewImportCmd(),
		NewStatusCmd(),
		NewVersionCmd(version),
	)
	return root
}

// NewVersionCmd prints the build version.
func NewVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shikibetsu version %s\n", version)
		},
	}
}

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if present, and a missing default file means built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// settings holds the resolved persistent flags of a command invocation.
type settings struct {
	cfg        *config.Config
	configPath string
	serverURL  string
	format     cli.OutputFormat
	debug      bool
	logger     *zap.Logger
}

func loadSettings(cmd *cobra.Command) (*settings, error) {
	configPath, _ := cmd.Flags().GetString("config")
	serverURL, _ := cmd.Flags().GetString("server")
	output, _ := cmd.Flags().GetString("output")
	debug, _ := cmd.Flags().GetBool("debug")

	s := &settings{serverURL: serverURL, format: cli.ParseFormat(output)}
	if serverURL == "" {
		cfg, resolved, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		s.cfg, s.configPath = cfg, resolved
		s.debug = cfg.Debug || debug
	} else {
		s.debug = debug
	}
	level := "warn"
	if s.cfg != nil && cmd.Name() == "server" {
		level = s.cfg.LogLevel
	}
	logger, err := utils.NewLoggerWithLevel(s.debug, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	s.logger = logger
	return s, nil
}
