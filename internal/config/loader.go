package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. A missing file is not an error: the
// defaults are returned so the gateway runs out of the box.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using defaults", "path", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown fields are rejected so typos fail loudly.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			cfg = &Config{}
		} else {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	if !cfg.Providers.LLM.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("providers.llm.backend %q is invalid; valid values: openai, anthropic, ollama", cfg.Providers.LLM.Backend))
	}
	if cfg.Providers.LLM.Temperature < 0 || cfg.Providers.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("providers.llm.temperature %.2f is out of range [0, 2]", cfg.Providers.LLM.Temperature))
	}
	if cfg.Providers.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("providers.llm.max_tokens %d must not be negative", cfg.Providers.LLM.MaxTokens))
	}
	if cfg.Providers.LLM.Backend == BackendOpenAI && cfg.Providers.LLM.APIKey == "" && cfg.Providers.OpenAI.APIKey == "" {
		slog.Warn("providers.llm.backend is openai but no api key is configured; relying on OPENAI_API_KEY")
	}

	if !cfg.Session.TTSProvider.IsValid() {
		errs = append(errs, fmt.Errorf("session.tts_provider %q is invalid; valid values: kokoro, openai", cfg.Session.TTSProvider))
	}
	if cfg.Session.SilenceMs < 100 {
		errs = append(errs, fmt.Errorf("session.silence_ms %d is below the 100ms minimum", cfg.Session.SilenceMs))
	}
	if cfg.Session.MessageLimit < 0 || cfg.Session.MessageWindowMs < 0 {
		errs = append(errs, errors.New("session.message_limit and session.message_window_ms must not be negative"))
	}
	if cfg.Session.LLMLimit < 0 || cfg.Session.LLMWindowMs < 0 {
		errs = append(errs, errors.New("session.llm_limit and session.llm_window_ms must not be negative"))
	}

	seen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			continue
		}
		if prev, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of personas[%d]", prefix, p.ID, prev))
		}
		seen[p.ID] = i
	}

	if cfg.Keywords.PhoneticThreshold < 0 || cfg.Keywords.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("keywords.phonetic_threshold %.2f is out of range [0, 1]", cfg.Keywords.PhoneticThreshold))
	}
	if cfg.Keywords.FuzzyThreshold < 0 || cfg.Keywords.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("keywords.fuzzy_threshold %.2f is out of range [0, 1]", cfg.Keywords.FuzzyThreshold))
	}
	if cfg.Keywords.Enabled && len(cfg.Keywords.Words) == 0 && len(cfg.Personas) == 0 {
		slog.Warn("keywords.enabled is set but no words or personas are configured; corrector will be idle")
	}

	return errors.Join(errs...)
}

// ApplyEnv overlays well-known environment variables onto cfg. Environment
// values win over the file so container deployments can reconfigure without
// editing YAML.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.ListenAddr = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if os.Getenv("NODE_ENV") == "production" {
		cfg.Server.LogFormat = LogJSON
	}
	if cert, key := os.Getenv("TLS_CERT"), os.Getenv("TLS_KEY"); cert != "" && key != "" {
		cfg.Server.TLS = &TLSConfig{CertFile: cert, KeyFile: key}
	}
	if v := os.Getenv("PARAKEET_URL"); v != "" {
		cfg.Providers.Parakeet.URL = v
	}
	if v := os.Getenv("KOKORO_URL"); v != "" {
		cfg.Providers.Kokoro.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
}
