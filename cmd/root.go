// Package cmd is the forcegraph command line.
package cmd

import (
	"fmt"

	"github.com/TFMV/forcegraph/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.3.0"

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "forcegraph",
		Short: "forcegraph - force-directed graph layout",
		Long: `forcegraph lays out node/link graphs with a force simulation and
renders them as SVG, ASCII, JSON or DOT.

It can render a file once, or serve graphs from a SQLite database over HTTP
with a live websocket frame stream and pan/pinch gestures.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.SetVersionTemplate("forcegraph {{ .Version }}\n")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		renderCmd(a),
		serveCmd(a),
		seedCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	logger.Debug("Configuration loaded", zap.Strings("sources", cfg.LoadedFrom))
	return nil
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}
