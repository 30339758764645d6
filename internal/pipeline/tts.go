package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/voxgate/voxgate/pkg/audio"
)

const (
	// defaultMaxParallel bounds concurrent synthesis calls per connection.
	defaultMaxParallel = 2

	// defaultDrainTimeout is the safety bound on waiting for in-flight
	// synthesis during Finish.
	defaultDrainTimeout = 30 * time.Second

	// fallbackSampleRate is assumed when a clip has no parseable WAV header.
	fallbackSampleRate = 16000
)

// ClipMeta describes one synthesized clip, sent to the client immediately
// before its binary frame.
type ClipMeta struct {
	Format     string `json:"format"`
	Index      int    `json:"index"`
	SampleRate int    `json:"sampleRate"`
	DurationMs int    `json:"durationMs"`
}

// Synthesizer is the slice of the TTS router the pipeline needs.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// TTSEvents are the upward-facing callbacks of a [TTSPipeline]. Clip is
// required; the rest are optional. Clip invocations are strictly ordered by
// index; each carries the metadata and the audio bytes together so the
// caller can serialize the meta frame before the binary frame.
type TTSEvents struct {
	// Clip delivers one in-order synthesized clip.
	Clip func(meta ClipMeta, clip []byte)

	// Error reports one failed phrase synthesis.
	Error func(turnID string, err error)

	// Done signals the end of audio for a turn (after Finish or Cancel).
	Done func()

	// AllFailed signals that every phrase of a non-empty turn failed.
	AllFailed func()

	// Cancelled signals that the pipeline was cancelled.
	Cancelled func()
}

// TTSConfig configures a [TTSPipeline].
type TTSConfig struct {
	// Synthesizer performs the actual synthesis. Required.
	Synthesizer Synthesizer

	// Voice resolves the active voice name at dispatch time. Optional.
	Voice func() string

	// Events are the upward callbacks. Events.Clip is required.
	Events TTSEvents

	// MaxParallel bounds concurrent synthesis calls. Defaults to 2.
	MaxParallel int

	// DrainTimeout bounds the Finish wait. Defaults to 30 s.
	DrainTimeout time.Duration

	// Logger receives pipeline diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// ttsChunk is one phrase queued for synthesis.
type ttsChunk struct {
	ctx    context.Context
	text   string
	turnID string
}

// TTSPipeline synthesizes phrase chunks with bounded parallelism and
// delivers the resulting clips strictly in index order. A generation counter
// invalidates completions from synthesis calls dispatched before a Reset, so
// stale audio can never leak into a later turn.
type TTSPipeline struct {
	synth        Synthesizer
	voice        func() string
	events       TTSEvents
	maxParallel  int
	drainTimeout time.Duration
	logger       *slog.Logger

	mu            sync.Mutex
	pending       map[int]ttsChunk
	completed     map[int][]byte
	failed        map[int]struct{}
	failedTotal   int
	totalChunks   int
	nextSendIndex int
	inFlight      int
	cancelled     bool
	generation    uint64
	drainDone     chan struct{}
	drainTimer    *time.Timer
}

// NewTTSPipeline creates a pipeline. cfg.Synthesizer and cfg.Events.Clip
// must be non-nil.
func NewTTSPipeline(cfg TTSConfig) (*TTSPipeline, error) {
	if cfg.Synthesizer == nil {
		return nil, errors.New("pipeline: TTSConfig.Synthesizer must not be nil")
	}
	if cfg.Events.Clip == nil {
		return nil, errors.New("pipeline: TTSConfig.Events.Clip must not be nil")
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TTSPipeline{
		synth:        cfg.Synthesizer,
		voice:        cfg.Voice,
		events:       cfg.Events,
		maxParallel:  maxParallel,
		drainTimeout: drainTimeout,
		logger:       logger.With("component", "tts_pipeline"),
		pending:      make(map[int]ttsChunk),
		completed:    make(map[int][]byte),
		failed:       make(map[int]struct{}),
	}, nil
}

// ProcessChunk queues one phrase for synthesis. Refused after Cancel.
func (p *TTSPipeline) ProcessChunk(ctx context.Context, text string, index int, turnID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return
	}
	if index+1 > p.totalChunks {
		p.totalChunks = index + 1
	}
	p.pending[index] = ttsChunk{ctx: ctx, text: text, turnID: turnID}
	p.dispatchLocked()
}

// dispatchLocked starts synthesis for pending chunks while a worker slot is
// free. Caller holds p.mu.
func (p *TTSPipeline) dispatchLocked() {
	for p.inFlight < p.maxParallel && !p.cancelled && len(p.pending) > 0 {
		var index int
		var chunk ttsChunk
		for i, c := range p.pending {
			index, chunk = i, c
			break
		}
		delete(p.pending, index)
		p.inFlight++
		gen := p.generation
		go p.synthesizeAndQueue(chunk, index, gen)
	}
}

// synthesizeAndQueue runs one synthesis call and folds its result back into
// pipeline state. Results from a generation older than the current one are
// dropped without touching any counters.
func (p *TTSPipeline) synthesizeAndQueue(chunk ttsChunk, index int, gen uint64) {
	voice := ""
	if p.voice != nil {
		voice = p.voice()
	}
	ctx := chunk.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	clip, err := p.synth.Synthesize(ctx, chunk.text, voice)

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.failed[index] = struct{}{}
		p.failedTotal++
		p.logger.Warn("synthesis failed", "index", index, "turn_id", chunk.turnID, "error", err)
		if p.events.Error != nil {
			defer p.events.Error(chunk.turnID, err)
		}
	} else {
		p.completed[index] = clip
	}
	p.inFlight--
	p.sendInOrderLocked()
	p.dispatchLocked()
	p.checkDrainedLocked()
	p.mu.Unlock()
}

// sendInOrderLocked delivers completed clips strictly by index, skipping
// indices that failed. Caller holds p.mu; the Clip callback runs under the
// lock so two workers can never interleave deliveries.
func (p *TTSPipeline) sendInOrderLocked() {
	if p.cancelled {
		clear(p.completed)
		return
	}
	for {
		if clip, ok := p.completed[p.nextSendIndex]; ok {
			delete(p.completed, p.nextSendIndex)
			p.events.Clip(clipMeta(clip, p.nextSendIndex), clip)
			p.nextSendIndex++
			continue
		}
		if _, ok := p.failed[p.nextSendIndex]; ok {
			delete(p.failed, p.nextSendIndex)
			p.nextSendIndex++
			continue
		}
		return
	}
}

// clipMeta derives the wire metadata for one clip from its WAV header.
func clipMeta(clip []byte, index int) ClipMeta {
	rate := fallbackSampleRate
	if info, err := audio.Parse(clip); err == nil && info.SampleRate > 0 {
		rate = info.SampleRate
	}
	durationMs := 0
	if rate > 0 {
		pcmLen := len(clip) - audio.HeaderSize
		if pcmLen > 0 {
			durationMs = int(math.Round(float64(pcmLen) / float64(rate*2) * 1000))
		}
	}
	return ClipMeta{Format: "wav", Index: index, SampleRate: rate, DurationMs: durationMs}
}

// Finish waits for all queued and in-flight synthesis to settle, then emits
// the terminal events for the turn: AllFailed when every phrase of a
// non-empty turn failed, and Done unless Cancel already emitted it.
func (p *TTSPipeline) Finish(ctx context.Context) {
	drained := p.drainAll()
	select {
	case <-drained:
	case <-ctx.Done():
	}

	p.mu.Lock()
	cancelled := p.cancelled
	allFailed := !cancelled && p.totalChunks > 0 && p.failedTotal == p.totalChunks
	p.mu.Unlock()

	if allFailed && p.events.AllFailed != nil {
		p.events.AllFailed()
	}
	if !cancelled && p.events.Done != nil {
		p.events.Done()
	}
}

// drainAll returns a channel closed once no work is pending or in flight.
// A safety timer force-resolves the drain after the configured timeout.
func (p *TTSPipeline) drainAll() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inFlight == 0 && len(p.pending) == 0 {
		p.sendInOrderLocked()
		done := make(chan struct{})
		close(done)
		return done
	}

	if p.drainDone == nil {
		p.drainDone = make(chan struct{})
		p.drainTimer = time.AfterFunc(p.drainTimeout, func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.drainDone == nil {
				return
			}
			p.logger.Warn("drain safety timeout", "in_flight", p.inFlight, "pending", len(p.pending))
			p.sendInOrderLocked()
			p.resolveDrainLocked()
		})
	}
	return p.drainDone
}

// checkDrainedLocked resolves a pending drain once all work has settled.
// Caller holds p.mu.
func (p *TTSPipeline) checkDrainedLocked() {
	if p.inFlight == 0 && len(p.pending) == 0 {
		p.resolveDrainLocked()
	}
}

// resolveDrainLocked closes the drain channel and stops the safety timer.
// Caller holds p.mu.
func (p *TTSPipeline) resolveDrainLocked() {
	if p.drainDone != nil {
		close(p.drainDone)
		p.drainDone = nil
	}
	if p.drainTimer != nil {
		p.drainTimer.Stop()
		p.drainTimer = nil
	}
}

// Cancel aborts the turn's audio: pending and completed clips are discarded
// and Done is emitted immediately. Idempotent; a second call emits nothing.
func (p *TTSPipeline) Cancel() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	clear(p.pending)
	clear(p.completed)
	p.resolveDrainLocked()
	p.mu.Unlock()

	if p.events.Done != nil {
		p.events.Done()
	}
	if p.events.Cancelled != nil {
		p.events.Cancelled()
	}
}

// Reset prepares the pipeline for a new turn. The generation bump strands
// any still-running synthesis calls: their completions are dropped without
// decrementing inFlight, which Reset has already zeroed.
func (p *TTSPipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.pending)
	clear(p.completed)
	clear(p.failed)
	p.failedTotal = 0
	p.totalChunks = 0
	p.nextSendIndex = 0
	p.inFlight = 0
	p.cancelled = false
	p.generation++
	p.resolveDrainLocked()
}
