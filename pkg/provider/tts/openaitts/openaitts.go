// Package openaitts provides a TTS provider backed by the OpenAI speech API.
//
// It requests WAV output so clips flow through the same delivery path as the
// local providers. The speech API has no health endpoint; HealthCheck probes
// the models listing instead.
//
// Usage:
//
//	p, err := openaitts.New("sk-...",
//	    openaitts.WithModel("gpt-4o-mini-tts"),
//	    openaitts.WithDefaultVoice("alloy"),
//	)
package openaitts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultModel         = "gpt-4o-mini-tts"
	defaultVoice         = "alloy"
	defaultTimeout       = 15 * time.Second
	defaultHealthTimeout = 3 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the speech model. Defaults to "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithDefaultVoice sets the voice used when Synthesize is called with an
// empty voice name. Defaults to "alloy".
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		p.defaultVoice = voice
	}
}

// WithTimeout sets the wall-clock budget for one synthesis request.
// Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements tts.Provider using the OpenAI speech API.
// It is safe for concurrent use; synthesis requests may run in parallel.
type Provider struct {
	client        oai.Client
	model         string
	defaultVoice  string
	timeout       time.Duration
	healthTimeout time.Duration
	baseURL       string
}

// New creates a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openaitts: apiKey must not be empty")
	}
	p := &Provider{
		model:         defaultModel,
		defaultVoice:  defaultVoice,
		timeout:       defaultTimeout,
		healthTimeout: defaultHealthTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize renders text as one WAV clip via POST /v1/audio/speech. An empty
// voice falls back to the provider's default voice.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if voice == "" {
		voice = p.defaultVoice
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("openaitts: speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openaitts: speech request returned status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openaitts: read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openaitts: server returned empty audio")
	}
	return audio, nil
}

// HealthCheck verifies that the API accepts the credentials by listing models.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.healthTimeout)
	defer cancel()

	_, err := p.client.Models.List(ctx)
	return err == nil
}
