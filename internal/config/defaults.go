package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Telegram: TelegramConfig{
			APIBase:  "https://api.telegram.org",
			FileBase: "https://api.telegram.org/file",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Path: "/telegram/webhook",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds:         45,
			Retries:                0,
			PipelineTimeoutSeconds: 300,
		},
		Media: MediaConfig{
			MaxBytes: 20 << 20,
		},
		Service: ServiceConfig{
			Strategy:   "url",
			Language:   "en",
			VoiceID:    "default",
			ResultType: "text",
			Analysis: AnalysisConfig{
				APIBase: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
		},
		Dispatcher: DispatcherConfig{
			Acknowledge: false,
			AckText:     "received msg",
			Workers:     4,
			QueueSize:   100,
		},
	}
}
