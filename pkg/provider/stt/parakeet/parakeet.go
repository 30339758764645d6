// Package parakeet provides an STT provider backed by a local Parakeet
// transcription server.
//
// The server exposes a small REST API: POST /transcribe accepts one WAV clip
// as multipart/form-data (field name "audio") and answers with the recognised
// text, an overall confidence, and optional per-span segments as JSON.
// GET /health reports readiness.
//
// Usage:
//
//	p, err := parakeet.New("http://localhost:8765")
//	res, err := p.Transcribe(ctx, wavBytes, "audio/wav")
package parakeet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/voxgate/voxgate/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

const (
	transcribeEndpoint = "/transcribe"
	healthEndpoint     = "/health"

	defaultTimeout       = 5 * time.Second
	defaultHealthTimeout = 3 * time.Second
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the wall-clock budget for one transcription request.
// Defaults to 5 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

// WithHealthTimeout sets the wall-clock budget for one health probe.
// Defaults to 3 s.
func WithHealthTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.healthTimeout = d
	}
}

// Provider implements stt.Provider backed by a Parakeet HTTP server.
// It is safe for concurrent use; transcriptions may run in parallel.
type Provider struct {
	serverURL     string
	timeout       time.Duration
	healthTimeout time.Duration
	httpClient    *http.Client
}

// New creates a Provider that targets the Parakeet server at serverURL
// (e.g. "http://localhost:8765"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("parakeet: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:     strings.TrimRight(serverURL, "/"),
		timeout:       defaultTimeout,
		healthTimeout: defaultHealthTimeout,
		httpClient:    &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe uploads one audio clip as multipart/form-data and decodes the
// JSON transcription response. The request is bounded by the configured
// timeout on top of ctx.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="audio.wav"`)
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	header.Set("Content-Type", mimeType)

	fw, err := mw.CreatePart(header)
	if err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: create form part: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: write audio part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+transcribeEndpoint, &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: POST %s: %w", transcribeEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("parakeet: POST %s returned status %d", transcribeEndpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: read response body: %w", err)
	}

	var result stt.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, fmt.Errorf("parakeet: parse JSON response: %w", err)
	}
	return result, nil
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
