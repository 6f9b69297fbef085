package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalConfig represents configuration stored in ~/.config/jv/config.yml.
type GlobalConfig struct {
	DefaultProject   string        `yaml:"default_project,omitempty"`
	LogLevel         string        `yaml:"log_level,omitempty"`
	LogFormat        string        `yaml:"log_format,omitempty"` // json or console
	ScanWorkers      int           `yaml:"scan_workers,omitempty"`
	ProgressInterval time.Duration `yaml:"progress_interval,omitempty"`
	BusyTimeout      time.Duration `yaml:"busy_timeout,omitempty"` // Wait on a locked project store
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "jv"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"

	// EnvPrefix prefixes environment variables that override config values.
	EnvPrefix = "JV_"
)

// Defaults applied when neither the config file nor the environment sets a value.
const (
	DefaultLogLevel         = "warn"
	DefaultLogFormat        = "console"
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultBusyTimeout      = 5 * time.Second
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/jv/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file and applies JV_*
// environment overrides. Returns defaults (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	var cfg GlobalConfig
	if path := GlobalConfigPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing global config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.DefaultProject != "" {
		cfg.DefaultProject = ExpandPath(cfg.DefaultProject)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached global config.
// Useful for testing.
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

func (c *GlobalConfig) applyEnv() error {
	c.DefaultProject = GetConfigValue(EnvPrefix+"PROJECT", c.DefaultProject)
	c.LogLevel = GetConfigValue(EnvPrefix+"LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetConfigValue(EnvPrefix+"LOG_FORMAT", c.LogFormat)

	if v := os.Getenv(EnvPrefix + "SCAN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %sSCAN_WORKERS: %q", EnvPrefix, v)
		}
		c.ScanWorkers = n
	}
	if v := os.Getenv(EnvPrefix + "PROGRESS_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sPROGRESS_INTERVAL: %w", EnvPrefix, err)
		}
		c.ProgressInterval = d
	}
	if v := os.Getenv(EnvPrefix + "BUSY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("invalid %sBUSY_TIMEOUT: %q", EnvPrefix, v)
		}
		c.BusyTimeout = d
	}
	return nil
}

func (c *GlobalConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = DefaultProgressInterval
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
}

// GetConfigValue returns the environment variable if set, otherwise the config value.
func GetConfigValue(envKey, configValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return configValue
}

// GetDefaultProject returns the project used when none is found from the working directory.
func GetDefaultProject() string {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return ""
	}
	return cfg.DefaultProject
}

// HelpfulConfigMessage returns a helpful message when no project is found.
func HelpfulConfigMessage() string {
	configPath := GlobalConfigPath()
	return fmt.Sprintf(`No jsonviews project found.

Tip: run 'jv init' in a directory, or create %s to set a default project:
  mkdir -p %s
  echo 'default_project: /path/to/your/project' > %s`,
		configPath,
		filepath.Dir(configPath),
		configPath)
}
