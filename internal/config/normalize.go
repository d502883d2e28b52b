package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTMDB()
	c.normalizeLLM()
	c.normalizeMonitor()
	c.normalizeTelegram()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	roots := make([]string, 0, len(c.Paths.WatchRoots))
	seen := make(map[string]struct{}, len(c.Paths.WatchRoots))
	for _, root := range c.Paths.WatchRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		expanded, expandErr := expandPath(root)
		if expandErr != nil {
			return fmt.Errorf("paths.watch_roots: %w", expandErr)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		roots = append(roots, expanded)
	}
	c.Paths.WatchRoots = roots

	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateFile) == "" {
		c.Paths.StateFile = defaultStateFile
	}
	if c.Paths.StateFile, err = expandPath(c.Paths.StateFile); err != nil {
		return fmt.Errorf("paths.state_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimSpace(c.TMDB.BaseURL)
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.Language == "" {
		c.TMDB.Language = defaultTMDBLanguage
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = defaultLLMMaxAttempts
	}
}

func (c *Config) normalizeMonitor() {
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = defaultMonitorInterval
	}
	if c.Monitor.SettleSeconds < 0 {
		c.Monitor.SettleSeconds = 0
	}
	if c.Monitor.MaxAttempts <= 0 {
		c.Monitor.MaxAttempts = defaultMonitorAttempts
	}
	c.Monitor.ArchiveDirName = strings.TrimSpace(c.Monitor.ArchiveDirName)
	if c.Monitor.ArchiveDirName == "" {
		c.Monitor.ArchiveDirName = defaultArchiveDirName
	}
	c.Monitor.FailDirName = strings.TrimSpace(c.Monitor.FailDirName)
	if c.Monitor.FailDirName == "" {
		c.Monitor.FailDirName = defaultFailDirName
	}
}

func (c *Config) normalizeTelegram() {
	if c.Telegram.BotToken == "" {
		if value, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
			c.Telegram.BotToken = value
		}
	}
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	if c.Telegram.RequestTimeout <= 0 {
		c.Telegram.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeHistory() {
	if c.History.Keep <= 0 {
		c.History.Keep = defaultHistoryKeep
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
