package resilience

import (
	"context"
	"log/slog"

	"github.com/voxgate/voxgate/pkg/provider/stt"
)

// SentinelTranscript is the transcription text served in place of a provider
// call while the STT breaker refuses requests.
const SentinelTranscript = "[STT unavailable — local provider offline]"

// Router event types.
const (
	EventProviderSwitched  = "provider_switched"
	EventProviderRecovered = "provider_recovered"
)

// RouterEvent describes a provider availability change observed by a router.
type RouterEvent struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// STTRouterConfig configures an [STTRouter].
type STTRouterConfig struct {
	// PrimaryName is the label of the wrapped provider in events and breaker
	// logs. Default: "parakeet".
	PrimaryName string

	// StubName is the label reported as the active "provider" while the
	// breaker is open. Default: "cloud_stub".
	StubName string

	// Breaker tunes the wrapped circuit breaker. Its Name defaults to
	// "stt:" + PrimaryName and its OnStateChange is owned by the router.
	Breaker CircuitBreakerConfig

	// OnEvent, if set, receives provider_switched and provider_recovered
	// events. Called on the goroutine that resolved the breaker transition.
	OnEvent func(RouterEvent)
}

// STTRouter guards a primary STT adapter with a circuit breaker. While the
// breaker refuses requests the router answers with a stub [stt.Result]
// carrying [SentinelTranscript] instead of returning an error.
//
// STTRouter is safe for concurrent use.
type STTRouter struct {
	primary     stt.Provider
	breaker     *CircuitBreaker
	primaryName string
	stubName    string
	onEvent     func(RouterEvent)
}

// NewSTTRouter creates an [STTRouter] around the primary provider.
func NewSTTRouter(primary stt.Provider, cfg STTRouterConfig) *STTRouter {
	if cfg.PrimaryName == "" {
		cfg.PrimaryName = "parakeet"
	}
	if cfg.StubName == "" {
		cfg.StubName = "cloud_stub"
	}
	cbCfg := cfg.Breaker
	if cbCfg.Name == "" {
		cbCfg.Name = "stt:" + cfg.PrimaryName
	}

	r := &STTRouter{
		primary:     primary,
		primaryName: cfg.PrimaryName,
		stubName:    cfg.StubName,
		onEvent:     cfg.OnEvent,
	}
	cbCfg.OnStateChange = r.stateChanged
	r.breaker = NewCircuitBreaker(cbCfg)
	return r
}

// Transcribe calls the primary provider under the breaker. When the breaker
// refuses the request, or this failure trips it open, the stub result is
// returned in place of an error; other failures are returned to the caller.
func (r *STTRouter) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	if !r.breaker.CanRequest() {
		return r.stubResult(), nil
	}

	res, err := r.primary.Transcribe(ctx, audio, mimeType)
	if err == nil {
		r.breaker.RecordSuccess()
		return res, nil
	}

	r.breaker.RecordFailure()
	if r.breaker.State() == StateOpen {
		slog.Warn("stt provider unavailable, serving stub transcript",
			"provider", r.primaryName, "error", err)
		return r.stubResult(), nil
	}
	return stt.Result{}, err
}

// HealthCheck reports the primary provider's health regardless of breaker
// state.
func (r *STTRouter) HealthCheck(ctx context.Context) bool {
	return r.primary.HealthCheck(ctx)
}

// State returns the breaker's current state.
func (r *STTRouter) State() State {
	return r.breaker.State()
}

// Close releases the breaker's pending cooldown timer.
func (r *STTRouter) Close() {
	r.breaker.Close()
}

func (r *STTRouter) stubResult() stt.Result {
	return stt.Result{Text: SentinelTranscript, Confidence: 0, Segments: []stt.Segment{}}
}

func (r *STTRouter) stateChanged(from, to State) {
	if r.onEvent == nil {
		return
	}
	switch {
	case from == StateClosed && to == StateOpen:
		r.onEvent(RouterEvent{Type: EventProviderSwitched, From: r.primaryName, To: r.stubName})
	case to == StateClosed:
		r.onEvent(RouterEvent{Type: EventProviderRecovered, From: r.stubName, To: r.primaryName})
	}
}
