package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks configuration invariants that normalize cannot repair.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return fmt.Errorf("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir must be set")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Monitor.ArchiveDirName == c.Monitor.FailDirName {
		return fmt.Errorf("monitor.archive_dir_name and monitor.fail_dir_name must differ")
	}
	for _, root := range c.Paths.WatchRoots {
		if isWithin(c.Paths.LibraryDir, root) {
			return fmt.Errorf("paths.library_dir %q must not be inside watch root %q", c.Paths.LibraryDir, root)
		}
		if isWithin(c.Paths.LogDir, root) {
			return fmt.Errorf("paths.log_dir %q must not be inside watch root %q", c.Paths.LogDir, root)
		}
		if isWithin(c.Paths.StateFile, root) {
			return fmt.Errorf("paths.state_file %q must not be inside watch root %q", c.Paths.StateFile, root)
		}
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token required when telegram.enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id required when telegram.enabled")
		}
	}
	return nil
}

func isWithin(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
