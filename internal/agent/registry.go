// Package agent manages the named personas a session can speak with.
//
// A persona bundles the system prompt, voice, preferred TTS provider, and
// model for one assistant character. Personas are defined in the YAML config
// (or a standalone persona file) and switched at runtime with the /agent
// command.
package agent

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Persona is one named assistant character.
type Persona struct {
	// ID is the stable identifier used by /agent. Required, unique.
	ID string `yaml:"id"`

	// Name is the display name. Defaults to ID.
	Name string `yaml:"name"`

	// SystemPrompt is injected ahead of conversation history.
	SystemPrompt string `yaml:"system_prompt"`

	// Voice is the TTS voice name. Empty selects the provider default.
	Voice string `yaml:"voice"`

	// TTSProvider optionally pins a TTS provider ("kokoro" or "openai").
	TTSProvider string `yaml:"tts_provider"`

	// Model optionally pins an upstream model for this persona.
	Model string `yaml:"model"`
}

// Validate reports all problems with the persona definition.
func (p Persona) Validate() error {
	var errs []error
	if p.ID == "" {
		errs = append(errs, errors.New("persona id must not be empty"))
	}
	if p.TTSProvider != "" && p.TTSProvider != "kokoro" && p.TTSProvider != "openai" {
		errs = append(errs, fmt.Errorf("persona %q: unknown tts_provider %q", p.ID, p.TTSProvider))
	}
	return errors.Join(errs...)
}

// defaultPersona serves sessions that never pick one.
var defaultPersona = Persona{
	ID:           "default",
	Name:         "Vox",
	SystemPrompt: "You are Vox, a helpful voice assistant. Answer briefly and conversationally.",
}

// Registry holds the configured personas. Safe for concurrent use; the set
// can be replaced wholesale on config reload.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	personas map[string]Persona
}

// NewRegistry creates a registry from the given personas. An empty list is
// valid; the built-in default persona then backs Default(). The first
// persona in the list is the default otherwise.
func NewRegistry(personas []Persona) (*Registry, error) {
	r := &Registry{personas: make(map[string]Persona)}
	if err := r.Replace(personas); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the full persona set. On validation failure the previous set
// is kept.
func (r *Registry) Replace(personas []Persona) error {
	next := make(map[string]Persona, len(personas))
	order := make([]string, 0, len(personas))
	var errs []error
	for _, p := range personas {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := next[p.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate persona id %q", p.ID))
			continue
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		next[p.ID] = p
		order = append(order, p.ID)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("agent: invalid personas: %w", err)
	}

	r.mu.Lock()
	r.personas = next
	r.order = order
	r.mu.Unlock()
	return nil
}

// Get returns the persona with the given id.
func (r *Registry) Get(id string) (Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[id]
	return p, ok
}

// Default returns the first configured persona, or the built-in default when
// none are configured.
func (r *Registry) Default() Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return defaultPersona
	}
	return r.personas[r.order[0]]
}

// List returns all personas in configuration order.
func (r *Registry) List() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.personas[id])
	}
	return out
}

// Names returns the display names of all personas in configuration order.
// Used by the transcript corrector to bias STT toward persona names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.personas[id].Name)
	}
	return out
}

// personaFile is the schema of a standalone persona YAML file.
type personaFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads persona definitions from a YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadFile(path string) ([]Persona, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("agent: open persona file: %w", err)
	}
	defer f.Close()

	var pf personaFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("agent: parse persona file %s: %w", path, err)
	}
	return pf.Personas, nil
}
