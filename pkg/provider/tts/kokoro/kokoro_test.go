package kokoro_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/tts/kokoro"
)

// newMockServer responds to POST /api/tts with audio and records the decoded
// request bodies.
func newMockServer(t *testing.T, audio []byte) (*httptest.Server, func() []map[string]string) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/tts":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			mu.Lock()
			requests = append(requests, body)
			mu.Unlock()
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(audio)

		case r.Method == http.MethodGet && r.URL.Path == "/health":
			w.WriteHeader(http.StatusOK)

		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	return srv, func() []map[string]string {
		mu.Lock()
		defer mu.Unlock()
		out := make([]map[string]string, len(requests))
		copy(out, requests)
		return out
	}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := kokoro.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestSynthesize_Success(t *testing.T) {
	wantAudio := []byte("RIFFfakewav")
	srv, requests := newMockServer(t, wantAudio)
	defer srv.Close()

	p, err := kokoro.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "Hello there.", "af_bella")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != string(wantAudio) {
		t.Errorf("audio = %q, want %q", audio, wantAudio)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	if reqs[0]["text"] != "Hello there." || reqs[0]["voice"] != "af_bella" {
		t.Errorf("request body = %v, want text and voice set", reqs[0])
	}
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	srv, requests := newMockServer(t, []byte("audio"))
	defer srv.Close()

	p, _ := kokoro.New(srv.URL, kokoro.WithDefaultVoice("af_nova"))
	if _, err := p.Synthesize(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 || reqs[0]["voice"] != "af_nova" {
		t.Errorf("request voice = %v, want af_nova", reqs)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "synthesis failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := kokoro.New(srv.URL)
	_, err := p.Synthesize(context.Background(), "hi", "")
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v, want status code mentioned", err)
	}
}

func TestSynthesize_EmptyAudio(t *testing.T) {
	srv, _ := newMockServer(t, nil)
	defer srv.Close()

	p, _ := kokoro.New(srv.URL)
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error for empty audio response, got nil")
	}
}

func TestSynthesize_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	p, _ := kokoro.New(srv.URL, kokoro.WithTimeout(20*time.Millisecond))
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newMockServer(t, []byte("audio"))

	p, _ := kokoro.New(srv.URL)
	if !p.HealthCheck(context.Background()) {
		t.Error("HealthCheck = false against healthy server, want true")
	}

	srv.Close()
	if p.HealthCheck(context.Background()) {
		t.Error("HealthCheck = true for unreachable server, want false")
	}
}
