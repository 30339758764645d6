// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (e.g. a local Parakeet
// server) behind a single blocking call: hand it one encoded audio clip, get
// back the recognised text with an overall confidence and optional per-span
// segments. Rolling partial transcription is layered on top by the gateway
// and is not a provider concern.
//
// Implementations must be safe for concurrent use. Multiple transcriptions
// may run in parallel (e.g. a rolling partial decode overlapping a final
// decode for the same connection).
package stt

import "context"

// Segment is one recognised span of audio. Start and End are offsets from the
// beginning of the clip, in seconds.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the outcome of a single transcription call.
type Result struct {
	// Text is the full recognised transcript. Empty for silent audio.
	Text string `json:"text"`

	// Confidence is the provider's overall confidence in [0, 1]. Providers
	// that do not report one use 1.
	Confidence float64 `json:"confidence"`

	// Segments holds per-span recognition detail when the provider reports
	// it. May be empty.
	Segments []Segment `json:"segments"`
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe decodes one complete audio clip and returns the recognised
	// text. audio is an encoded clip (WAV for the bundled providers) and
	// mimeType describes its container, e.g. "audio/wav".
	//
	// Implementations must honour ctx cancellation and bound the call with
	// their own wall-clock timeout.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (Result, error)

	// HealthCheck reports whether the backend is reachable and ready to
	// accept transcription requests.
	HealthCheck(ctx context.Context) bool
}
