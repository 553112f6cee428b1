package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		OpenRouter: OpenRouterConfig{
			APIBase: "https://openrouter.ai/api/v1",
			Model:   "cognitivecomputations/dolphin-mistral-24b-venice-edition:free",
		},
		ImageGen: ImageGenConfig{
			BaseURL: "https://imgen.duck.mom/prompt/",
		},
		WhatsApp: WhatsAppConfig{
			DBPath:                "~/.jinoca/session.db",
			ReconnectDelaySeconds: 5,
		},
		History: HistoryConfig{
			DBPath:     "~/.jinoca/history.db",
			WindowSize: 10,
		},
	}
}
