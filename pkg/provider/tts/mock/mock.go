// Package mock provides test doubles for the tts package interfaces.
//
// Use Provider to return canned audio bytes (or an error) and inspect which
// phrases were synthesised. SynthesizeFunc allows per-call behaviour such as
// controlled completion order in pipeline tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Text is the phrase passed to Synthesize.
	Text string
	// Voice is the voice name passed to Synthesize.
	Voice string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err and SynthesizeFunc are unset.
	Audio []byte

	// Err, if non-nil, is returned as the error from every Synthesize call.
	Err error

	// Healthy is returned by HealthCheck.
	Healthy bool

	// SynthesizeFunc, if set, overrides the canned Audio/Err behaviour.
	// Calls are still recorded.
	SynthesizeFunc func(ctx context.Context, text, voice string) ([]byte, error)

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the canned audio.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	fn := p.SynthesizeFunc
	audio, err := p.Audio, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voice)
	}
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// HealthCheck returns Healthy.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Healthy
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Texts returns the synthesised phrases in call order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.SynthesizeCalls))
	for i, c := range p.SynthesizeCalls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
