package main

import (
	"fmt"
	"strings"

	"github.com/matsen/jsonviews/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show effective configuration",
	Long: `Show the configuration in effect after applying the config file and
JV_* environment overrides.

Usage:
  jv config                   # Show all values
  jv config log-level         # Show one value

Keys:
  default-project    Project used when none encloses the current directory
  log-level          debug, info, warn or error
  log-format         console or json
  scan-workers       Files parsed in parallel (0: one per CPU)
  progress-interval  Minimum time between progress updates
  busy-timeout       How long to wait on a locked project store`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

// ConfigResponse is the response for the config command.
type ConfigResponse struct {
	Path             string `json:"path"`
	DefaultProject   string `json:"default_project,omitempty"`
	LogLevel         string `json:"log_level"`
	LogFormat        string `json:"log_format"`
	ScanWorkers      int    `json:"scan_workers"`
	ProgressInterval string `json:"progress_interval"`
	BusyTimeout      string `json:"busy_timeout"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}

	resp := ConfigResponse{
		Path:             config.GlobalConfigPath(),
		DefaultProject:   cfg.DefaultProject,
		LogLevel:         cfg.LogLevel,
		LogFormat:        cfg.LogFormat,
		ScanWorkers:      cfg.ScanWorkers,
		ProgressInterval: cfg.ProgressInterval.String(),
		BusyTimeout:      cfg.BusyTimeout.String(),
	}
	values := map[string]string{
		"default-project":   resp.DefaultProject,
		"log-level":         resp.LogLevel,
		"log-format":        resp.LogFormat,
		"scan-workers":      fmt.Sprint(resp.ScanWorkers),
		"progress-interval": resp.ProgressInterval,
		"busy-timeout":      resp.BusyTimeout,
	}

	if len(args) == 1 {
		key := normalizeKey(args[0])
		v, ok := values[key]
		if !ok {
			exitWithError(ExitError, "unknown config key: %s", args[0])
		}
		if humanOutput {
			fmt.Println(v)
		} else {
			outputJSON(map[string]string{strings.ReplaceAll(key, "-", "_"): v})
		}
		return nil
	}

	if humanOutput {
		fmt.Printf("config file:       %s\n", resp.Path)
		for _, k := range []string{"default-project", "log-level", "log-format", "scan-workers", "progress-interval", "busy-timeout"} {
			fmt.Printf("%-18s %s\n", k+":", values[k])
		}
	} else {
		outputJSON(resp)
	}
	return nil
}

// normalizeKey accepts snake_case and kebab-case keys.
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", "-")
}
