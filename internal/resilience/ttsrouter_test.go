package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	ttsmock "github.com/voxgate/voxgate/pkg/provider/tts/mock"
)

var errTTSDown = errors.New("tts down")

func newTestTTSRouter(t *testing.T, kokoro, openai *ttsmock.Provider) *TTSRouter {
	t.Helper()
	r, err := NewTTSRouter(TTSRouterConfig{
		Providers: []TTSProviderConfig{
			{Name: "kokoro", Provider: kokoro, Breaker: CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}},
			{Name: "openai", Provider: openai, Breaker: CircuitBreakerConfig{FailureThreshold: 1, Cooldown: time.Hour}},
		},
		Preferred: "kokoro",
	})
	if err != nil {
		t.Fatalf("NewTTSRouter: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestTTSRouter_PreferredFirst(t *testing.T) {
	kokoro := &ttsmock.Provider{Audio: []byte("kokoro audio")}
	openai := &ttsmock.Provider{Audio: []byte("openai audio")}
	r := newTestTTSRouter(t, kokoro, openai)

	audio, err := r.Synthesize(context.Background(), "hello", "af_bella")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "kokoro audio" {
		t.Errorf("audio = %q, want kokoro's", audio)
	}
	if kokoro.CallCount() != 1 || openai.CallCount() != 0 {
		t.Errorf("calls = kokoro %d, openai %d; want 1, 0", kokoro.CallCount(), openai.CallCount())
	}
}

func TestTTSRouter_FailoverOnError(t *testing.T) {
	kokoro := &ttsmock.Provider{Err: errTTSDown}
	openai := &ttsmock.Provider{Audio: []byte("openai audio")}
	r := newTestTTSRouter(t, kokoro, openai)

	audio, err := r.Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "openai audio" {
		t.Errorf("audio = %q, want openai's", audio)
	}

	// The single failure tripped kokoro's breaker (threshold 1); the next
	// request must skip it without another adapter call.
	if st, _ := r.ProviderState("kokoro"); st != StateOpen {
		t.Fatalf("kokoro breaker = %v, want open", st)
	}
	if _, err := r.Synthesize(context.Background(), "again", ""); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if kokoro.CallCount() != 1 {
		t.Errorf("kokoro called %d times, want 1 (breaker open)", kokoro.CallCount())
	}
	if openai.CallCount() != 2 {
		t.Errorf("openai called %d times, want 2", openai.CallCount())
	}
}

func TestTTSRouter_AllFail(t *testing.T) {
	kokoro := &ttsmock.Provider{Err: errTTSDown}
	openai := &ttsmock.Provider{Err: errTTSDown}
	r := newTestTTSRouter(t, kokoro, openai)

	_, err := r.Synthesize(context.Background(), "hello", "")
	if !errors.Is(err, ErrAllProvidersUnavailable) {
		t.Fatalf("err = %v, want ErrAllProvidersUnavailable", err)
	}
}

func TestTTSRouter_AllRefused(t *testing.T) {
	kokoro := &ttsmock.Provider{Err: errTTSDown}
	openai := &ttsmock.Provider{Err: errTTSDown}
	r := newTestTTSRouter(t, kokoro, openai)

	// Trip both breakers, then verify a fresh request is refused outright.
	_, _ = r.Synthesize(context.Background(), "hello", "")

	before := kokoro.CallCount() + openai.CallCount()
	_, err := r.Synthesize(context.Background(), "hello again", "")
	if !errors.Is(err, ErrAllProvidersUnavailable) {
		t.Fatalf("err = %v, want ErrAllProvidersUnavailable", err)
	}
	if got := kokoro.CallCount() + openai.CallCount(); got != before {
		t.Errorf("adapters called while both breakers open: %d -> %d", before, got)
	}
}

func TestTTSRouter_SetPreferred(t *testing.T) {
	kokoro := &ttsmock.Provider{Audio: []byte("kokoro audio")}
	openai := &ttsmock.Provider{Audio: []byte("openai audio")}
	r := newTestTTSRouter(t, kokoro, openai)

	if err := r.SetPreferred("openai"); err != nil {
		t.Fatalf("SetPreferred: %v", err)
	}
	if r.Preferred() != "openai" {
		t.Errorf("Preferred() = %q, want openai", r.Preferred())
	}

	audio, err := r.Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "openai audio" {
		t.Errorf("audio = %q, want openai's", audio)
	}
	if kokoro.CallCount() != 0 {
		t.Errorf("kokoro called %d times, want 0", kokoro.CallCount())
	}

	if err := r.SetPreferred("elevenlabs"); err == nil {
		t.Error("SetPreferred(unknown) = nil, want error")
	}
}

func TestTTSRouter_PreferenceKeepsBreakerState(t *testing.T) {
	kokoro := &ttsmock.Provider{Err: errTTSDown}
	openai := &ttsmock.Provider{Audio: []byte("openai audio")}
	r := newTestTTSRouter(t, kokoro, openai)

	// Trip kokoro.
	if _, err := r.Synthesize(context.Background(), "hello", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st, _ := r.ProviderState("kokoro"); st != StateOpen {
		t.Fatalf("kokoro breaker = %v, want open", st)
	}

	if err := r.SetPreferred("openai"); err != nil {
		t.Fatalf("SetPreferred: %v", err)
	}
	if st, _ := r.ProviderState("kokoro"); st != StateOpen {
		t.Errorf("kokoro breaker = %v after SetPreferred, want still open", st)
	}
}

func TestNewTTSRouter_Validation(t *testing.T) {
	mock := &ttsmock.Provider{}

	if _, err := NewTTSRouter(TTSRouterConfig{}); err == nil {
		t.Error("empty config accepted, want error")
	}

	_, err := NewTTSRouter(TTSRouterConfig{
		Providers: []TTSProviderConfig{
			{Name: "kokoro", Provider: mock},
			{Name: "kokoro", Provider: mock},
		},
	})
	if err == nil {
		t.Error("duplicate provider name accepted, want error")
	}

	_, err = NewTTSRouter(TTSRouterConfig{
		Providers: []TTSProviderConfig{{Name: "kokoro", Provider: mock}},
		Preferred: "openai",
	})
	if err == nil {
		t.Error("unknown preferred provider accepted, want error")
	}
}
