// Package stt implements the rolling-window partial transcription loop.
//
// While the user is speaking, the gateway re-decodes the most recent few
// seconds of buffered audio on a fixed interval and publishes partial
// transcripts so the client can render text in near real time. Because each
// decode sees a slightly different window, the raw transcripts flicker; the
// stable-prefix algorithm extracts the word-aligned prefix that has not
// changed across the last few decodes and only ever grows, giving the client
// a monotone "committed" region plus a volatile tail.
package stt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/provider/stt"
)

// Transcriber is the decode dependency of the rolling loop. Both the raw
// parakeet adapter and the breaker-guarded STT router satisfy it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (stt.Result, error)
}

// Partial is one partial transcript update. Stable is the committed prefix,
// Unstable the volatile remainder of Text past it.
type Partial struct {
	Text     string `json:"text"`
	Stable   string `json:"stable"`
	Unstable string `json:"unstable"`
}

// RollingConfig tunes a [RollingDecoder]. Zero values take the defaults used
// in production: a 6 s window decoded every 500 ms at 16 kHz mono, with a
// prefix considered stable after 2 matching decodes.
type RollingConfig struct {
	WindowSeconds      int
	Interval           time.Duration
	StabilityThreshold int
	SampleRate         int

	// OnPartial receives every partial transcript, on the decode goroutine.
	OnPartial func(Partial)

	// OnFinal receives the finalization transcript, on the caller's goroutine.
	OnFinal func(text string)

	Logger *slog.Logger
}

// RollingDecoder owns the partial-decode loop for one listening phase. Audio
// bytes are appended as they arrive from the client; a ticker drives decodes
// of the trailing window; Finalize runs one blocking decode over the whole
// buffer.
//
// RollingDecoder is safe for concurrent use.
type RollingDecoder struct {
	transcriber Transcriber
	cfg         RollingConfig
	log         *slog.Logger

	mu        sync.Mutex
	chunks    [][]byte
	totalLen  int
	inFlight  bool
	ticker    *time.Ticker
	stop      chan struct{}
	running   bool
	stability *stablePrefix
}

// NewRollingDecoder creates a stopped decoder. Call Start to begin the
// partial-decode loop.
func NewRollingDecoder(t Transcriber, cfg RollingConfig) *RollingDecoder {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 6
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.StabilityThreshold <= 0 {
		cfg.StabilityThreshold = 2
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &RollingDecoder{
		transcriber: t,
		cfg:         cfg,
		log:         log.With("component", "rolling_stt"),
		stability:   newStablePrefix(cfg.StabilityThreshold),
	}
}

// Append adds raw PCM bytes to the rolling buffer.
func (d *RollingDecoder) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b := make([]byte, len(pcm))
	copy(b, pcm)

	d.mu.Lock()
	d.chunks = append(d.chunks, b)
	d.totalLen += len(b)
	d.mu.Unlock()
}

// Start launches the periodic partial-decode loop. Starting a running decoder
// is a no-op.
func (d *RollingDecoder) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ticker = time.NewTicker(d.cfg.Interval)
	d.stop = make(chan struct{})
	ticker, stop := d.ticker, d.stop
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				d.decodeCycle(ctx)
			}
		}
	}()
}

// Stop halts the partial-decode loop without clearing the buffer.
func (d *RollingDecoder) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *RollingDecoder) stopLocked() {
	if !d.running {
		return
	}
	d.running = false
	d.ticker.Stop()
	close(d.stop)
}

// Reset stops the loop, clears the audio buffer, and forgets the stable
// prefix, readying the decoder for the next listening phase.
func (d *RollingDecoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.chunks = nil
	d.totalLen = 0
	d.inFlight = false
	d.stability = newStablePrefix(d.cfg.StabilityThreshold)
}

// decodeCycle runs one partial decode over the trailing window. Cycles that
// would overlap an in-flight decode, or that have no audio to look at, are
// skipped.
func (d *RollingDecoder) decodeCycle(ctx context.Context) {
	d.mu.Lock()
	if d.inFlight || d.totalLen == 0 {
		d.mu.Unlock()
		return
	}
	d.inFlight = true
	window := d.windowLocked()
	d.mu.Unlock()

	wav := audio.Encode(window, d.cfg.SampleRate, 1)
	res, err := d.transcriber.Transcribe(ctx, wav, "audio/wav")

	d.mu.Lock()
	d.inFlight = false
	if err != nil {
		d.mu.Unlock()
		d.log.Debug("partial decode failed", "error", err)
		return
	}
	partial := d.stability.observe(res.Text)
	d.mu.Unlock()

	if d.cfg.OnPartial != nil {
		d.cfg.OnPartial(partial)
	}
}

// windowLocked returns the trailing windowSeconds of buffered PCM, or the
// whole buffer when it is shorter. Must be called with d.mu held.
func (d *RollingDecoder) windowLocked() []byte {
	windowBytes := d.cfg.WindowSeconds * d.cfg.SampleRate * 2
	out := make([]byte, 0, min(windowBytes, d.totalLen))

	skip := d.totalLen - windowBytes
	for _, c := range d.chunks {
		if skip >= len(c) {
			skip -= len(c)
			continue
		}
		if skip > 0 {
			c = c[skip:]
			skip = 0
		}
		out = append(out, c...)
	}
	return out
}

// Finalize stops the partial loop, decodes the complete buffer in one
// blocking call, and returns the final transcript. The buffer is cleared.
func (d *RollingDecoder) Finalize(ctx context.Context) (string, error) {
	d.mu.Lock()
	d.stopLocked()
	full := make([]byte, 0, d.totalLen)
	for _, c := range d.chunks {
		full = append(full, c...)
	}
	d.chunks = nil
	d.totalLen = 0
	d.mu.Unlock()

	if len(full) == 0 {
		return "", nil
	}

	wav := audio.Encode(full, d.cfg.SampleRate, 1)
	res, err := d.transcriber.Transcribe(ctx, wav, "audio/wav")
	if err != nil {
		return "", err
	}
	if d.cfg.OnFinal != nil {
		d.cfg.OnFinal(res.Text)
	}
	return res.Text, nil
}

// BufferedBytes returns the current rolling buffer size.
func (d *RollingDecoder) BufferedBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalLen
}

// stablePrefix implements the monotone stable-prefix extraction over a
// history of recent transcripts.
type stablePrefix struct {
	threshold int
	history   []string
	prefix    string
}

func newStablePrefix(threshold int) *stablePrefix {
	return &stablePrefix{threshold: threshold}
}

// observe folds one new transcript into the history and returns the resulting
// partial. The stable prefix never shrinks: it only advances when the last
// threshold transcripts agree past a word boundary beyond the current prefix.
func (s *stablePrefix) observe(text string) Partial {
	s.history = append(s.history, text)

	if len(s.history) < s.threshold {
		return Partial{Text: text, Stable: s.prefix, Unstable: text}
	}

	common := s.history[len(s.history)-s.threshold]
	for _, h := range s.history[len(s.history)-s.threshold+1:] {
		common = commonPrefix(common, h)
	}

	if lastSpace := strings.LastIndexByte(common, ' '); lastSpace > len(s.prefix) {
		s.prefix = strings.TrimRight(common[:lastSpace], " \t")
	}

	unstable := text
	if len(s.prefix) <= len(text) {
		unstable = text[len(s.prefix):]
	}
	return Partial{Text: text, Stable: s.prefix, Unstable: unstable}
}

// commonPrefix returns the longest character-wise shared prefix of a and b.
func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
