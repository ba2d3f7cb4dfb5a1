package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataDir             string `json:"data_dir"`
	LockTimeoutMs       int    `json:"lock_timeout_ms,omitempty"`
	CheckpointThreshold int    `json:"checkpoint_threshold,omitempty"`
	DisableWAL          bool   `json:"disable_wal,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DataDirAbs   string `json:"-"` // Absolute path to the data directory

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// LockTimeout returns the configured lock timeout as a duration.
// Zero means the store default applies.
func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMs) * time.Millisecond
}

// TablePath returns the data file location for the named table.
func (c Config) TablePath(table string) string {
	return filepath.Join(c.DataDirAbs, table+".json")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DataDir: ".luxdb",
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = ".luxdb.json"

var (
	ErrConfigInvalid      = errors.New("invalid config")
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrDataDirEmpty       = errors.New("data_dir must not be empty")
)

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/luxdb/config.json if set, otherwise
// ~/.config/luxdb/config.json. Returns empty string if the home
// directory cannot be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "luxdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "luxdb", "config.json")
	}

	return ""
}

// LoadConfigInput holds the inputs for LoadConfig.
type LoadConfigInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DataDirOverride string            // --data-dir flag value; empty means no override
	Env             map[string]string // environment variables
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/luxdb/config.json or $XDG_CONFIG_HOME/luxdb/config.json)
// 3. Project config file at default location (.luxdb.json, if exists)
// 4. Explicit config file via configPath (if non-empty)
// 5. CLI overrides.
//
// All paths in the returned Config are resolved to absolute paths.
func LoadConfig(input LoadConfigInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadGlobalConfig(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	validateErr := validateConfig(cfg)
	if validateErr != nil {
		return Config{}, validateErr
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = cfg.DataDir
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, nil
}

// loadGlobalConfig loads the global user config file if it exists.
// Returns the config, the path if loaded, and any error.
func loadGlobalConfig(env map[string]string) (Config, string, error) {
	globalCfgPath := getGlobalConfigPath(env)
	if globalCfgPath == "" {
		return Config{}, "", nil
	}

	globalCfg, loaded, err := loadConfigFile(globalCfgPath, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return globalCfg, globalCfgPath, nil
}

// loadProjectConfig loads the project config file (.luxdb.json) or an
// explicit config file. Returns the config, the path if loaded, and any
// error.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		// Explicit config file - must exist
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		// Check existence first to provide a clear "not found" error
		_, statErr := os.Stat(cfgFile)
		if statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		// Default project config file - optional
		cfgFile = filepath.Join(workDir, ConfigFileName)
		mustExist = false
	}

	fileCfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return fileCfg, cfgFile, nil
}

// loadConfigFile loads a config file. If mustExist is false, missing
// files return zero config. Returns the config, whether the file was
// loaded, and any error.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.LockTimeoutMs != 0 {
		base.LockTimeoutMs = overlay.LockTimeoutMs
	}

	if overlay.CheckpointThreshold != 0 {
		base.CheckpointThreshold = overlay.CheckpointThreshold
	}

	if overlay.DisableWAL {
		base.DisableWAL = true
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}

	if cfg.LockTimeoutMs < 0 {
		return fmt.Errorf("%w: lock_timeout_ms must be non-negative", ErrConfigInvalid)
	}

	if cfg.CheckpointThreshold < 0 {
		return fmt.Errorf("%w: checkpoint_threshold must be non-negative", ErrConfigInvalid)
	}

	return nil
}

// FormatConfig renders cfg as the JSON a config file would contain.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}

	return string(data), nil
}
