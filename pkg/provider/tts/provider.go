// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. a local Kokoro server
// or the OpenAI speech API) behind a single blocking call that renders one
// phrase of text into a complete audio clip. Phrase-level pipelining, ordered
// delivery, and failover between providers are the gateway's job, not the
// provider's.
//
// Implementations must be safe for concurrent use. The gateway deliberately
// runs several synthesis calls in parallel for one connection.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as one complete audio clip and returns the
	// encoded bytes (WAV for the bundled providers). voice selects the
	// provider-specific voice name; an empty string means the provider's
	// default voice.
	//
	// Implementations must honour ctx cancellation and bound the call with
	// their own wall-clock timeout.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)

	// HealthCheck reports whether the backend is reachable and ready to
	// accept synthesis requests.
	HealthCheck(ctx context.Context) bool
}
