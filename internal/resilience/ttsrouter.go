package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// ErrAllProvidersUnavailable is returned by [TTSRouter.Synthesize] when every
// backend either refused the request or failed it.
var ErrAllProvidersUnavailable = errors.New("all tts providers unavailable")

// TTSProviderConfig registers one synthesis backend with a [TTSRouter].
type TTSProviderConfig struct {
	// Name identifies the backend in preference commands and logs,
	// e.g. "kokoro" or "openai".
	Name string

	// Provider is the adapter for this backend.
	Provider tts.Provider

	// Breaker tunes the backend's dedicated circuit breaker. Its Name
	// defaults to "tts:" + Name.
	Breaker CircuitBreakerConfig
}

// TTSRouterConfig configures a [TTSRouter].
type TTSRouterConfig struct {
	// Providers are the backends in registration order. At least one is
	// required; the gateway registers kokoro and openai.
	Providers []TTSProviderConfig

	// Preferred names the backend tried first. Defaults to the first
	// registered provider.
	Preferred string
}

type ttsEntry struct {
	name     string
	provider tts.Provider
	breaker  *CircuitBreaker
}

// TTSRouter routes synthesis requests across multiple backends, each guarded
// by its own circuit breaker. The preferred backend is tried first; when its
// breaker refuses the request or the call fails, the remaining backends are
// tried in registration order.
//
// TTSRouter is safe for concurrent use.
type TTSRouter struct {
	entries []*ttsEntry

	mu        sync.Mutex
	preferred string
}

// NewTTSRouter creates a [TTSRouter] from cfg. It fails when no providers are
// registered, a name repeats, or Preferred names an unknown backend.
func NewTTSRouter(cfg TTSRouterConfig) (*TTSRouter, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("resilience: tts router needs at least one provider")
	}

	r := &TTSRouter{}
	seen := make(map[string]bool, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Name == "" || pc.Provider == nil {
			return nil, errors.New("resilience: tts provider entries need a name and a provider")
		}
		if seen[pc.Name] {
			return nil, fmt.Errorf("resilience: duplicate tts provider %q", pc.Name)
		}
		seen[pc.Name] = true

		cbCfg := pc.Breaker
		if cbCfg.Name == "" {
			cbCfg.Name = "tts:" + pc.Name
		}
		r.entries = append(r.entries, &ttsEntry{
			name:     pc.Name,
			provider: pc.Provider,
			breaker:  NewCircuitBreaker(cbCfg),
		})
	}

	r.preferred = cfg.Preferred
	if r.preferred == "" {
		r.preferred = r.entries[0].name
	} else if !seen[r.preferred] {
		return nil, fmt.Errorf("resilience: unknown preferred tts provider %q", cfg.Preferred)
	}
	return r, nil
}

// Synthesize renders text with the preferred backend, failing over to the
// remaining backends when a breaker refuses the request or the call fails.
// A success records on the breaker of the backend that produced the audio.
func (r *TTSRouter) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	var lastErr error
	for _, e := range r.ordered() {
		if !e.breaker.CanRequest() {
			slog.Debug("skipping tts provider, breaker refused",
				"provider", e.name)
			continue
		}
		audio, err := e.provider.Synthesize(ctx, text, voice)
		if err == nil {
			e.breaker.RecordSuccess()
			return audio, nil
		}
		e.breaker.RecordFailure()
		slog.Warn("tts provider failed, trying next",
			"provider", e.name, "error", err)
		lastErr = err
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllProvidersUnavailable, lastErr)
	}
	return nil, ErrAllProvidersUnavailable
}

// SetPreferred changes which backend is tried first. Breaker state is not
// affected.
func (r *TTSRouter) SetPreferred(name string) error {
	for _, e := range r.entries {
		if e.name == name {
			r.mu.Lock()
			r.preferred = name
			r.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("resilience: unknown tts provider %q", name)
}

// Preferred returns the name of the backend currently tried first.
func (r *TTSRouter) Preferred() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preferred
}

// ProviderState returns the breaker state of the named backend.
func (r *TTSRouter) ProviderState(name string) (State, bool) {
	for _, e := range r.entries {
		if e.name == name {
			return e.breaker.State(), true
		}
	}
	return StateClosed, false
}

// HealthCheck reports whether any backend is healthy.
func (r *TTSRouter) HealthCheck(ctx context.Context) bool {
	for _, e := range r.entries {
		if e.provider.HealthCheck(ctx) {
			return true
		}
	}
	return false
}

// Close releases every breaker's pending cooldown timer.
func (r *TTSRouter) Close() {
	for _, e := range r.entries {
		e.breaker.Close()
	}
}

// ordered returns the entries with the preferred backend first, then the rest
// in registration order.
func (r *TTSRouter) ordered() []*ttsEntry {
	r.mu.Lock()
	preferred := r.preferred
	r.mu.Unlock()

	out := make([]*ttsEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.name == preferred {
			out = append(out, e)
		}
	}
	for _, e := range r.entries {
		if e.name != preferred {
			out = append(out, e)
		}
	}
	return out
}
