package config_test

import (
	"slices"
	"testing"

	"github.com/voxgate/voxgate/internal/agent"
	"github.com/voxgate/voxgate/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Personas = []agent.Persona{{ID: "vox", Name: "Vox"}}

	d := config.Diff(cfg, cfg)
	if d.Live() {
		t.Errorf("expected no live changes for identical configs, got %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("expected no restart-required changes, got %v", d.RestartRequired)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want debug", d.NewLogLevel)
	}
	if !d.Live() {
		t.Error("log level change should be live-applicable")
	}
}

func TestDiff_PersonasChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Personas = []agent.Persona{{ID: "vox", SystemPrompt: "old prompt"}}
	new := config.Default()
	new.Personas = []agent.Persona{{ID: "vox", SystemPrompt: "new prompt"}}

	d := config.Diff(old, new)
	if !d.PersonasChanged {
		t.Error("expected PersonasChanged=true for prompt edit")
	}

	added := config.Default()
	added.Personas = []agent.Persona{{ID: "vox", SystemPrompt: "old prompt"}, {ID: "sage"}}
	d = config.Diff(old, added)
	if !d.PersonasChanged {
		t.Error("expected PersonasChanged=true for added persona")
	}
}

func TestDiff_KeywordsChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	old.Keywords = config.KeywordsConfig{Enabled: true, Words: []string{"voxgate"}}
	new := config.Default()
	new.Keywords = config.KeywordsConfig{Enabled: true, Words: []string{"voxgate", "kokoro"}}

	d := config.Diff(old, new)
	if !d.KeywordsChanged {
		t.Error("expected KeywordsChanged=true")
	}
}

func TestDiff_SessionChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Session.SilenceMs = 900

	d := config.Diff(old, new)
	if !d.SessionChanged {
		t.Error("expected SessionChanged=true")
	}
}

func TestDiff_RestartRequiredPaths(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9000"
	new.Providers.Parakeet.URL = "http://other:8765"
	new.Providers.LLM.Model = "gpt-4o"

	d := config.Diff(old, new)
	for _, want := range []string{"server.listen_addr", "providers.parakeet", "providers.llm"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired should contain %q, got %v", want, d.RestartRequired)
		}
	}
	if d.Live() {
		t.Errorf("restart-only changes should not report live, got %+v", d)
	}
}

func TestDiff_TLSChange(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("RestartRequired should contain server.tls, got %v", d.RestartRequired)
	}

	// Equal pointer contents are not a change.
	old.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
	d = config.Diff(old, new)
	if slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("identical TLS contents should not diff, got %v", d.RestartRequired)
	}
}

func TestDiff_MixedChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogWarn
	new.Server.ListenAddr = ":9000"
	new.Personas = []agent.Persona{{ID: "sage"}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.PersonasChanged {
		t.Errorf("expected log level and persona changes, got %+v", d)
	}
	if !slices.Contains(d.RestartRequired, "server.listen_addr") {
		t.Errorf("RestartRequired should contain server.listen_addr, got %v", d.RestartRequired)
	}
}
