package testsupport

import (
	"path/filepath"
	"testing"

	"aninamer/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchRoots = []string{filepath.Join(base, "watch")}
	cfgVal.Paths.LibraryDir = filepath.Join(base, "library")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateFile = filepath.Join(base, "state", "monitor.json")
	cfgVal.TMDB.APIKey = "test"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Monitor.IncludeExisting = true

	builder := &configBuilder{
		t:   t,
		cfg: &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithSettleSeconds overrides the monitor settle window.
func WithSettleSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.SettleSeconds = seconds
	}
}

// WithApply toggles automatic plan application on the test config.
func WithApply(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Monitor.Apply = enabled
	}
}
