// Package config provides the configuration schema, loader, env overrides,
// and hot-reload watcher for the voxgate gateway.
package config

import (
	"github.com/voxgate/voxgate/internal/agent"
)

// LogLevel controls log verbosity for the gateway.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// TTSProvider names a synthesis backend.
type TTSProvider string

const (
	TTSKokoro TTSProvider = "kokoro"
	TTSOpenAI TTSProvider = "openai"
)

// IsValid reports whether p is a recognised TTS provider.
func (p TTSProvider) IsValid() bool {
	return p == TTSKokoro || p == TTSOpenAI
}

// LLMBackend names an upstream chat-completion backend.
type LLMBackend string

const (
	BackendOpenAI    LLMBackend = "openai"
	BackendAnthropic LLMBackend = "anthropic"
	BackendOllama    LLMBackend = "ollama"
)

// IsValid reports whether b is a recognised upstream backend.
func (b LLMBackend) IsValid() bool {
	switch b {
	case BackendOpenAI, BackendAnthropic, BackendOllama:
		return true
	}
	return false
}

// Config is the root configuration structure for voxgate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Personas  []agent.Persona `yaml:"personas"`
	Keywords  KeywordsConfig  `yaml:"keywords"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8788".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output. Default "text"; the
	// NODE_ENV=production override forces "json".
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain
	// HTTP (WS instead of WSS).
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig configures the speech and language backends.
type ProvidersConfig struct {
	Parakeet ParakeetConfig `yaml:"parakeet"`
	Kokoro   KokoroConfig   `yaml:"kokoro"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	LLM      LLMConfig      `yaml:"llm"`
}

// ParakeetConfig points at the local STT server.
type ParakeetConfig struct {
	// URL is the parakeet server base URL. Default "http://localhost:8765".
	URL string `yaml:"url"`
}

// KokoroConfig points at the local TTS server.
type KokoroConfig struct {
	// URL is the kokoro server base URL. Default "http://localhost:8880".
	URL string `yaml:"url"`

	// Voice overrides the provider's default voice.
	Voice string `yaml:"voice"`
}

// OpenAIConfig authenticates the OpenAI TTS (and, when selected, LLM)
// backend.
type OpenAIConfig struct {
	// APIKey authenticates against the OpenAI API. The OPENAI_API_KEY
	// environment variable overrides it.
	APIKey string `yaml:"api_key"`
}

// LLMConfig selects and tunes the upstream chat-completion backend.
type LLMConfig struct {
	// Backend selects the upstream API family. Default "ollama".
	Backend LLMBackend `yaml:"backend"`

	// Model is the default model identifier. Default "llama3.2"; personas
	// and the /model command override it per session.
	Model string `yaml:"model"`

	// APIKey authenticates the backend when it needs one. Empty falls back
	// to the backend SDK's own environment variables.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Temperature and MaxTokens pass through to every completion. Zero
	// selects the backend defaults.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// SessionConfig holds the per-session defaults applied to new connections.
type SessionConfig struct {
	// TTSProvider is the synthesis backend tried first. Default "kokoro".
	TTSProvider TTSProvider `yaml:"tts_provider"`

	// SilenceMs is the end-of-utterance silence window in milliseconds.
	// Default 1500.
	SilenceMs int `yaml:"silence_ms"`

	// MessageLimit / MessageWindowMs tune the per-connection frame limiter.
	MessageLimit    int `yaml:"message_limit"`
	MessageWindowMs int `yaml:"message_window_ms"`

	// LLMLimit / LLMWindowMs tune the per-connection transcript_send
	// limiter.
	LLMLimit    int `yaml:"llm_limit"`
	LLMWindowMs int `yaml:"llm_window_ms"`
}

// KeywordsConfig tunes the transcript keyword corrector.
type KeywordsConfig struct {
	// Enabled switches correction on.
	Enabled bool `yaml:"enabled"`

	// Words is the vocabulary to correct toward. Persona names are added
	// automatically.
	Words []string `yaml:"words"`

	// PhoneticThreshold and FuzzyThreshold tune match acceptance.
	// Zero selects the matcher defaults.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8788",
			LogLevel:   LogInfo,
			LogFormat:  LogText,
		},
		Providers: ProvidersConfig{
			Parakeet: ParakeetConfig{URL: "http://localhost:8765"},
			Kokoro:   KokoroConfig{URL: "http://localhost:8880"},
			LLM:      LLMConfig{Backend: BackendOllama, Model: "llama3.2"},
		},
		Session: SessionConfig{
			TTSProvider: TTSKokoro,
			SilenceMs:   1500,
		},
	}
}

// applyDefaults fills zero-valued fields with the [Default] values.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = def.Server.LogFormat
	}
	if cfg.Providers.Parakeet.URL == "" {
		cfg.Providers.Parakeet.URL = def.Providers.Parakeet.URL
	}
	if cfg.Providers.Kokoro.URL == "" {
		cfg.Providers.Kokoro.URL = def.Providers.Kokoro.URL
	}
	if cfg.Providers.LLM.Backend == "" {
		cfg.Providers.LLM.Backend = def.Providers.LLM.Backend
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = def.Providers.LLM.Model
	}
	if cfg.Session.TTSProvider == "" {
		cfg.Session.TTSProvider = def.Session.TTSProvider
	}
	if cfg.Session.SilenceMs == 0 {
		cfg.Session.SilenceMs = def.Session.SilenceMs
	}
}
