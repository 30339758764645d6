// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to feed a canned Result (or error) to the code under test and
// inspect which clips were transcribed.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Result{Text: "hello", Confidence: 0.92}}
//	res, _ := p.Transcribe(ctx, wav, "audio/wav")
package mock

import (
	"context"
	"sync"

	"github.com/voxgate/voxgate/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Audio is a copy of the clip passed to Transcribe.
	Audio []byte
	// MimeType is the container type passed to Transcribe.
	MimeType string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err and TranscribeFunc are unset.
	Result stt.Result

	// Err, if non-nil, is returned as the error from every Transcribe call.
	Err error

	// Healthy is returned by HealthCheck.
	Healthy bool

	// TranscribeFunc, if set, overrides the canned Result/Err behaviour.
	// Calls are still recorded.
	TranscribeFunc func(ctx context.Context, audio []byte, mimeType string) (stt.Result, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the canned result.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	p.mu.Lock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Audio: cp, MimeType: mimeType})
	fn := p.TranscribeFunc
	res, err := p.Result, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, audio, mimeType)
	}
	if err != nil {
		return stt.Result{}, err
	}
	return res, nil
}

// HealthCheck returns Healthy.
func (p *Provider) HealthCheck(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Healthy
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
