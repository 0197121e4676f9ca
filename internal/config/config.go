package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// ProviderMode selects real upstream collaborators or local mocks:
	// auto|live|mock.
	ProviderMode string

	DeepgramAPIKey     string
	DeepgramAPIBaseURL string
	DeepgramWSBaseURL  string
	DeepgramSTTModel   string
	DeepgramLanguage   string
	DeepgramTTSModel   string
	UtteranceEndMS     int

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAITTSModel string

	DefaultTTSProvider string
	DefaultVoice       string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "nexus"),
		// The prototype UI may be served from a different origin than the API.
		AllowAnyOrigin:     true,
		ProviderMode:       envOrDefault("VOICE_PROVIDER_MODE", "auto"),
		DeepgramAPIKey:     trimmedEnv("DEEPGRAM_API_KEY"),
		DeepgramAPIBaseURL: envOrDefault("DEEPGRAM_API_BASE_URL", "https://api.deepgram.com"),
		DeepgramWSBaseURL:  envOrDefault("DEEPGRAM_WS_BASE_URL", "wss://api.deepgram.com"),
		DeepgramSTTModel:   envOrDefault("DEEPGRAM_STT_MODEL", "nova-2"),
		DeepgramLanguage:   envOrDefault("DEEPGRAM_LANGUAGE", "pt-BR"),
		DeepgramTTSModel:   envOrDefault("DEEPGRAM_TTS_MODEL", "aura-asteria-en"),
		UtteranceEndMS:     1000,
		GroqAPIKey:         trimmedEnv("GROQ_API_KEY"),
		GroqBaseURL:        envOrDefault("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqModel:          envOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile"),
		OpenAIAPIKey:       trimmedEnv("OPENAI_API_KEY"),
		OpenAIBaseURL:      envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAITTSModel:     envOrDefault("OPENAI_TTS_MODEL", "tts-1"),
		DefaultTTSProvider: envOrDefault("DEFAULT_TTS_PROVIDER", "openai"),
		DefaultVoice:       envOrDefault("DEFAULT_TTS_VOICE", "alloy"),
		ShutdownTimeout:    15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.UtteranceEndMS, err = intFromEnv("DEEPGRAM_UTTERANCE_END_MS", cfg.UtteranceEndMS)
	if err != nil {
		return Config{}, err
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.ProviderMode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto", "live", "mock":
		cfg.ProviderMode = mode
	default:
		return Config{}, fmt.Errorf("VOICE_PROVIDER_MODE must be auto, live or mock, got %q", cfg.ProviderMode)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.DefaultTTSProvider)) {
	case "openai", "deepgram":
		cfg.DefaultTTSProvider = strings.ToLower(strings.TrimSpace(cfg.DefaultTTSProvider))
	default:
		return Config{}, fmt.Errorf("DEFAULT_TTS_PROVIDER must be openai or deepgram, got %q", cfg.DefaultTTSProvider)
	}

	if cfg.UtteranceEndMS <= 0 {
		return Config{}, fmt.Errorf("DEEPGRAM_UTTERANCE_END_MS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
