package config

import "slices"

// ConfigDiff describes what changed between two configs. Fields that can be
// applied live are tracked individually; anything else lands in
// RestartRequired so the caller can log what a reload could not pick up.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonasChanged is true when the persona set differs in any way. The
	// whole set is replaced on reload, so no per-persona diff is kept.
	PersonasChanged bool

	// KeywordsChanged is true when the corrector vocabulary or thresholds
	// differ.
	KeywordsChanged bool

	// SessionChanged is true when the per-session defaults differ. Applies
	// to connections opened after the reload.
	SessionChanged bool

	// RestartRequired lists config paths that changed but only take effect
	// on process restart (listen address, TLS, provider endpoints).
	RestartRequired []string
}

// Live reports whether the diff carries any change that a reload can apply
// without a restart.
func (d ConfigDiff) Live() bool {
	return d.LogLevelChanged || d.PersonasChanged || d.KeywordsChanged || d.SessionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Personas, new.Personas) {
		d.PersonasChanged = true
	}

	if old.Keywords.Enabled != new.Keywords.Enabled ||
		old.Keywords.PhoneticThreshold != new.Keywords.PhoneticThreshold ||
		old.Keywords.FuzzyThreshold != new.Keywords.FuzzyThreshold ||
		!slices.Equal(old.Keywords.Words, new.Keywords.Words) {
		d.KeywordsChanged = true
	}

	if old.Session != new.Session {
		d.SessionChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server.log_format")
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}
	if old.Providers.Parakeet != new.Providers.Parakeet {
		d.RestartRequired = append(d.RestartRequired, "providers.parakeet")
	}
	if old.Providers.Kokoro != new.Providers.Kokoro {
		d.RestartRequired = append(d.RestartRequired, "providers.kokoro")
	}
	if old.Providers.OpenAI != new.Providers.OpenAI {
		d.RestartRequired = append(d.RestartRequired, "providers.openai")
	}
	if old.Providers.LLM != new.Providers.LLM {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
