// Package kokoro provides a TTS provider backed by a local Kokoro synthesis
// server.
//
// The server exposes a small REST API: POST /api/tts accepts a JSON body
// {"text": ..., "voice": ...} and answers with the complete WAV clip as raw
// bytes. GET /health reports readiness.
//
// Usage:
//
//	p, err := kokoro.New("http://localhost:8880",
//	    kokoro.WithDefaultVoice("af_heart"),
//	)
//	audio, err := p.Synthesize(ctx, "Hello there.", "")
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	ttsEndpoint    = "/api/tts"
	healthEndpoint = "/health"

	defaultTimeout       = 10 * time.Second
	defaultHealthTimeout = 3 * time.Second
	defaultVoice         = "af_heart"
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the wall-clock budget for one synthesis request.
// Defaults to 10 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithDefaultVoice sets the voice used when Synthesize is called with an
// empty voice name. Defaults to "af_heart".
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		p.defaultVoice = voice
	}
}

// Provider implements tts.Provider backed by a Kokoro HTTP server.
// It is safe for concurrent use; synthesis requests may run in parallel.
type Provider struct {
	serverURL     string
	defaultVoice  string
	timeout       time.Duration
	healthTimeout time.Duration
	httpClient    *http.Client
}

// New creates a Provider that targets the Kokoro server at serverURL
// (e.g. "http://localhost:8880"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("kokoro: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:     strings.TrimRight(serverURL, "/"),
		defaultVoice:  defaultVoice,
		timeout:       defaultTimeout,
		healthTimeout: defaultHealthTimeout,
		httpClient:    &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /api/tts.
type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Synthesize renders text as one WAV clip. An empty voice falls back to the
// provider's default voice. The request is bounded by the configured timeout
// on top of ctx.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if voice == "" {
		voice = p.defaultVoice
	}
	data, err := json.Marshal(ttsRequest{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("kokoro: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("kokoro: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kokoro: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kokoro: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kokoro: read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("kokoro: server returned empty audio")
	}
	return audio, nil
}

// HealthCheck probes GET /health. Any response other than HTTP 200, or no
// response within the health timeout, reports unhealthy.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+healthEndpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
