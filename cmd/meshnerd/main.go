package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"meshnerd/internal/config"
	"meshnerd/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	jsonOutput bool

	// Logger
	logger *zap.Logger

	// Loaded configuration, available to every subcommand
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "meshnerd",
	Short: "meshNERD - workflow decision layer for 3D modeling",
	Long: `meshNERD sits between free-text modeling requests and the actuator.

It matches a request against a catalog of workflow templates using a
weighted ensemble (keyword, semantic, learned patterns), extracts
modifier overrides from the phrasing, and expands the winning template
into a concrete ordered action list: macros resolved, loops unrolled,
conditions checked against a simulated scene state.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if root, err := config.FindWorkspaceRoot(); err == nil {
			if err := logging.Initialize(root); err != nil {
				logger.Warn("File logging disabled", zap.Error(err))
			}
		}

		path := configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .meshnerd/config.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
