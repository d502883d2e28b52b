package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchRoots []string `toml:"watch_roots"`
	LibraryDir string   `toml:"library_dir"`
	LogDir     string   `toml:"log_dir"`
	StateFile  string   `toml:"state_file"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// LLM contains connection settings for the mapping oracle.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// Monitor contains configuration for the directory lifecycle loop.
type Monitor struct {
	Interval        int    `toml:"interval"`
	SettleSeconds   int    `toml:"settle_seconds"`
	MaxAttempts     int    `toml:"max_attempts"`
	Apply           bool   `toml:"apply"`
	IncludeExisting bool   `toml:"include_existing"`
	ArchiveDirName  string `toml:"archive_dir_name"`
	FailDirName     string `toml:"fail_dir_name"`
}

// Apply contains configuration for the transaction executor.
type Apply struct {
	TwoStage          bool `toml:"two_stage"`
	AllowExistingDest bool `toml:"allow_existing_dest"`
}

// Telegram contains push notification settings.
type Telegram struct {
	Enabled        bool   `toml:"enabled"`
	BotToken       string `toml:"bot_token"`
	ChatID         string `toml:"chat_id"`
	RequestTimeout int    `toml:"request_timeout"`
}

// History contains configuration for the run history store.
type History struct {
	Enabled bool `toml:"enabled"`
	Keep    int  `toml:"keep"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for aninamer.
//
// Configuration sections by subsystem:
//   - Paths: watched roots, library output root, logs, monitor state file
//   - TMDB: series metadata resolution
//   - LLM: mapping oracle connection settings
//   - Monitor: loop timing, settle window, archive/fail area names
//   - Apply: executor behavior (two-stage moves, existing destinations)
//   - Telegram: push notifications
//   - History: run history retention
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	TMDB     TMDB     `toml:"tmdb"`
	LLM      LLM      `toml:"llm"`
	Monitor  Monitor  `toml:"monitor"`
	Apply    Apply    `toml:"apply"`
	Telegram Telegram `toml:"telegram"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aninamer/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The bool reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("aninamer.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for monitor operation.
// LibraryDir is created on a best-effort basis so the monitor can start when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir, c.PlanDir(), filepath.Dir(c.Paths.StateFile)}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing startup when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// PlanDir returns the directory where plan, result, and rollback files are written.
func (c *Config) PlanDir() string {
	return filepath.Join(c.Paths.LogDir, "plans")
}

// LockPath returns the monitor single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "aninamer.lock")
}

// HistoryDBPath returns the run history database path.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
