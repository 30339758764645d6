package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewRegistry_EmptyUsesBuiltinDefault(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	def := r.Default()
	if def.ID != "default" {
		t.Errorf("Default().ID = %q, want built-in default", def.ID)
	}
	if def.SystemPrompt == "" {
		t.Error("built-in default has no system prompt")
	}
}

func TestNewRegistry_FirstPersonaIsDefault(t *testing.T) {
	r, err := NewRegistry([]Persona{
		{ID: "sage", Name: "Sage", SystemPrompt: "You are wise."},
		{ID: "scout", Name: "Scout", SystemPrompt: "You are quick."},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if got := r.Default().ID; got != "sage" {
		t.Errorf("Default().ID = %q, want sage", got)
	}
}

func TestRegistry_GetAndList(t *testing.T) {
	r, _ := NewRegistry([]Persona{
		{ID: "sage", Voice: "af_heart"},
		{ID: "scout"},
	})

	p, ok := r.Get("scout")
	if !ok {
		t.Fatal("Get(scout) not found")
	}
	if p.Name != "scout" {
		t.Errorf("Name = %q, want id fallback", p.Name)
	}
	if _, ok := r.Get("nobody"); ok {
		t.Error("Get(nobody) found a persona")
	}

	list := r.List()
	if len(list) != 2 || list[0].ID != "sage" || list[1].ID != "scout" {
		t.Errorf("List() = %+v, want configuration order", list)
	}
}

func TestNewRegistry_RejectsDuplicatesAndEmptyID(t *testing.T) {
	if _, err := NewRegistry([]Persona{{ID: "a"}, {ID: "a"}}); err == nil {
		t.Error("expected error for duplicate ids")
	}
	if _, err := NewRegistry([]Persona{{ID: ""}}); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := NewRegistry([]Persona{{ID: "a", TTSProvider: "espeak"}}); err == nil {
		t.Error("expected error for unknown tts_provider")
	}
}

func TestRegistry_ReplaceKeepsOldSetOnFailure(t *testing.T) {
	r, _ := NewRegistry([]Persona{{ID: "sage"}})

	if err := r.Replace([]Persona{{ID: ""}}); err == nil {
		t.Fatal("expected error for invalid replacement")
	}
	if _, ok := r.Get("sage"); !ok {
		t.Error("valid set was discarded after failed Replace")
	}
}

func TestRegistry_Names(t *testing.T) {
	r, _ := NewRegistry([]Persona{
		{ID: "sage", Name: "Sage"},
		{ID: "scout"},
	})
	names := r.Names()
	if len(names) != 2 || names[0] != "Sage" || names[1] != "scout" {
		t.Errorf("Names() = %v", names)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	data := `personas:
  - id: sage
    name: Sage
    system_prompt: You are wise.
    voice: af_heart
    tts_provider: kokoro
    model: gpt-4o-mini
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	personas, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(personas) != 1 {
		t.Fatalf("personas = %d, want 1", len(personas))
	}
	p := personas[0]
	if p.ID != "sage" || p.Voice != "af_heart" || p.TTSProvider != "kokoro" || p.Model != "gpt-4o-mini" {
		t.Errorf("persona = %+v", p)
	}
}

func TestLoadFile_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.yaml")
	data := `personas:
  - id: sage
    system_promt: typo
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
