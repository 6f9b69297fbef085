// Package main provides the jv CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/matsen/jsonviews/internal/config"
	"github.com/matsen/jsonviews/internal/logging"
	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/storage"
	"github.com/matsen/jsonviews/internal/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	// projectFlag overrides project discovery
	projectFlag string
	// verbose forces debug logging
	verbose bool
)

// Set up by the root command before any subcommand runs.
var (
	logger   = zap.NewNop()
	registry *view.Registry
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra errors (like missing args) are printed here
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jv",
	Short: "Relational views over folders of JSON files",
	Long: `jv turns folders of JSON files into queryable SQLite tables.

Core features:
  - Schema synthesis: infer one flat column set from many JSON files
  - Views: named, per-project tables with a saved query
  - SQL queries over materialized views

Project state lives in .jsonviews/ under the project directory.
All commands output JSON by default for AI agent integration.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "C", "", "Project directory (default: search upward from cwd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}

// setup loads configuration and builds the logger and view registry.
func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	l, err := logging.New(cfg.LogLevel, cfg.LogFormat, verbose)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	logger = l

	registry = view.NewRegistry(
		view.WithLogger(logger),
		view.WithScanOptions(schema.Options{
			Workers:          cfg.ScanWorkers,
			ProgressInterval: cfg.ProgressInterval,
		}),
		view.WithStoreOptions(storage.WithBusyTimeout(cfg.BusyTimeout)),
	)
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if registry != nil {
		logger.Debug("closing project stores", zap.Strings("projects", registry.OpenProjects()))
		registry.Close()
	}
	_ = logger.Sync()
}

// getStartingDirectory returns the directory to start searching for a project.
// The --project flag wins, then the current directory.
func getStartingDirectory() (string, error) {
	if projectFlag != "" {
		return config.ExpandPath(projectFlag), nil
	}
	return os.Getwd()
}

// mustFindProject finds the project working directory, exits on error.
// The global default_project is used when no project encloses the start directory.
func mustFindProject() string {
	start, err := getStartingDirectory()
	if err != nil {
		exitWithError(ExitError, "getting current directory: %v", err)
	}

	root, err := config.FindProject(start)
	if err == nil {
		return root
	}
	if projectFlag == "" {
		if def := config.GetDefaultProject(); def != "" && config.IsProject(def) {
			return def
		}
	}

	// Show helpful message if no project can be found
	fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
	exitProcess(ExitConfigError)
	return ""
}

// exitProcess releases open stores before exiting.
func exitProcess(code int) {
	teardown(nil, nil)
	os.Exit(code)
}
