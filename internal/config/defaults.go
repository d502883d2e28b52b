package config

const (
	defaultLibraryDir      = "~/library"
	defaultLogDir          = "~/.local/share/aninamer/logs"
	defaultStateFile       = "~/.local/share/aninamer/monitor_state.json"
	defaultTMDBBaseURL     = "https://api.themoviedb.org/3"
	defaultTMDBLanguage    = "zh-CN"
	defaultLLMBaseURL      = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel        = "gpt-4o-mini"
	defaultLLMTimeout      = 120
	defaultLLMMaxAttempts  = 3
	defaultMonitorInterval = 60
	defaultSettleSeconds   = 300
	defaultMonitorAttempts = 3
	defaultArchiveDirName  = "archive"
	defaultFailDirName     = "fail"
	defaultNotifyTimeout   = 10
	defaultHistoryKeep     = 500
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			StateFile:  defaultStateFile,
		},
		TMDB: TMDB{
			BaseURL:  defaultTMDBBaseURL,
			Language: defaultTMDBLanguage,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeout,
			MaxAttempts:    defaultLLMMaxAttempts,
		},
		Monitor: Monitor{
			Interval:       defaultMonitorInterval,
			SettleSeconds:  defaultSettleSeconds,
			MaxAttempts:    defaultMonitorAttempts,
			ArchiveDirName: defaultArchiveDirName,
			FailDirName:    defaultFailDirName,
		},
		Telegram: Telegram{
			RequestTimeout: defaultNotifyTimeout,
		},
		History: History{
			Enabled: true,
			Keep:    defaultHistoryKeep,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
