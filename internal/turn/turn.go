package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxgate/voxgate/internal/pipeline"
	"github.com/voxgate/voxgate/pkg/audio"
	sttprovider "github.com/voxgate/voxgate/pkg/provider/stt"
)

// defaultSilenceTimeout is how long after the last audio frame the turn
// decides the user stopped speaking.
const defaultSilenceTimeout = 1500 * time.Millisecond

const defaultSampleRate = 16000

// Phase tracks whether a turn is still running and how it ended.
type Phase int

const (
	PhaseActive Phase = iota
	PhaseCompleted
	PhaseCancelled
)

// Transcriber is the slice of the STT router a turn needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (sttprovider.Result, error)
}

// LLMStream is the slice of the LLM pipeline a turn needs.
type LLMStream interface {
	SendTranscript(ctx context.Context, text, sessionKey, turnID string) <-chan pipeline.LLMEvent
	Cancel()
}

// AudioPipeline is the slice of the TTS pipeline a turn needs.
type AudioPipeline interface {
	ProcessChunk(ctx context.Context, text string, index int, turnID string)
	Finish(ctx context.Context)
	Cancel()
	Reset()
}

// Sink receives the client-facing events a turn emits. The gateway's
// connection handler implements it on top of the socket writer queue.
type Sink interface {
	// TurnState announces a state change. turnID is empty for the terminal
	// idle of an abandoned (cancelled) turn.
	TurnState(state State, turnID string)

	// TranscriptFinal delivers the final transcript of a listening phase.
	TranscriptFinal(text, turnID string)

	// LLMToken delivers one streamed response delta.
	LLMToken(token, fullText string)

	// LLMDone delivers the complete response text.
	LLMDone(fullText string)

	// Error delivers a recoverable in-turn failure.
	Error(code, message string, recoverable bool)
}

// Config configures a [Turn].
type Config struct {
	// ID identifies the turn in every emitted event. Required.
	ID string

	// STT transcribes buffered audio. Required for the audio path.
	STT Transcriber

	// LLM streams the model response. Required.
	LLM LLMStream

	// TTS synthesizes response phrases. Required.
	TTS AudioPipeline

	// Sink receives client-facing events. Required.
	Sink Sink

	// Correct optionally rewrites a cleaned transcript (keyword correction).
	Correct func(string) string

	// SilenceTimeout overrides the 1500 ms silence window.
	SilenceTimeout time.Duration

	// SampleRate of buffered PCM, for WAV-wrapping STT uploads.
	// Defaults to 16000.
	SampleRate int

	// Logger receives turn diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// OnStateChange fires after every applied transition.
	OnStateChange func(from, to State)

	// OnComplete fires when the turn reaches idle through the state machine.
	OnComplete func(turnID string)

	// OnCancelled fires when the turn is cancelled.
	OnCancelled func(turnID string)
}

// Turn is one round trip of a voice conversation. All methods are safe for
// concurrent use; the receive loop, silence timer, and pipeline consumer all
// touch it.
type Turn struct {
	id             string
	ctx            context.Context
	stt            Transcriber
	llm            LLMStream
	tts            AudioPipeline
	sink           Sink
	correct        func(string) string
	silenceTimeout time.Duration
	sampleRate     int
	logger         *slog.Logger
	onStateChange  func(from, to State)
	onComplete     func(string)
	onCancelled    func(string)

	mu           sync.Mutex
	state        State
	phase        Phase
	audio        []byte
	audioBytes   int
	pending      string
	silenceTimer *time.Timer
}

// New creates a turn in the idle state. ctx bounds all of the turn's
// outbound calls; cancelling it abandons any in-flight STT request.
func New(ctx context.Context, cfg Config) (*Turn, error) {
	if cfg.ID == "" {
		return nil, errors.New("turn: Config.ID must not be empty")
	}
	if cfg.LLM == nil || cfg.TTS == nil || cfg.Sink == nil {
		return nil, errors.New("turn: Config.LLM, Config.TTS, and Config.Sink must not be nil")
	}
	silenceTimeout := cfg.SilenceTimeout
	if silenceTimeout <= 0 {
		silenceTimeout = defaultSilenceTimeout
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Turn{
		id:             cfg.ID,
		ctx:            ctx,
		stt:            cfg.STT,
		llm:            cfg.LLM,
		tts:            cfg.TTS,
		sink:           cfg.Sink,
		correct:        cfg.Correct,
		silenceTimeout: silenceTimeout,
		sampleRate:     sampleRate,
		logger:         logger.With("component", "turn", "turn_id", cfg.ID),
		onStateChange:  cfg.OnStateChange,
		onComplete:     cfg.OnComplete,
		onCancelled:    cfg.OnCancelled,
		state:          StateIdle,
	}, nil
}

// ID returns the turn identifier.
func (t *Turn) ID() string { return t.id }

// State returns the current state.
func (t *Turn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Phase returns the lifecycle phase.
func (t *Turn) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// IsActive reports whether the turn is still running.
func (t *Turn) IsActive() bool { return t.Phase() == PhaseActive }

// AudioBytes returns the number of buffered PCM bytes.
func (t *Turn) AudioBytes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioBytes
}

// Pending returns the accumulated transcript awaiting send.
func (t *Turn) Pending() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Transition applies event to the state machine. Unlisted (state, event)
// pairs are logged and ignored. Reaching idle through the machine completes
// the turn and fires the completion callback.
func (t *Turn) Transition(event Event) bool {
	t.mu.Lock()
	if t.phase != PhaseActive {
		t.mu.Unlock()
		return false
	}
	next, ok := Next(t.state, event)
	if !ok {
		state := t.state
		t.mu.Unlock()
		t.logger.Debug("event ignored", "state", state, "event", event)
		return false
	}
	from := t.state
	t.state = next
	completed := next == StateIdle
	if completed {
		t.phase = PhaseCompleted
		t.stopSilenceLocked()
	}
	t.mu.Unlock()

	t.sink.TurnState(next, t.id)
	if t.onStateChange != nil {
		t.onStateChange(from, next)
	}
	if completed && t.onComplete != nil {
		t.onComplete(t.id)
	}
	return true
}

// AppendAudio buffers one PCM frame and re-arms the silence timer. No-op
// when the turn is not active.
func (t *Turn) AppendAudio(b []byte) {
	t.mu.Lock()
	if t.phase != PhaseActive {
		t.mu.Unlock()
		return
	}
	t.audio = append(t.audio, b...)
	t.audioBytes += len(b)
	t.rearmSilenceLocked()
	t.mu.Unlock()
}

// rearmSilenceLocked (re)schedules the silence timer. Caller holds t.mu.
func (t *Turn) rearmSilenceLocked() {
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
	}
	t.silenceTimer = time.AfterFunc(t.silenceTimeout, t.transcribe)
}

// stopSilenceLocked releases the silence timer. Caller holds t.mu.
func (t *Turn) stopSilenceLocked() {
	if t.silenceTimer != nil {
		t.silenceTimer.Stop()
		t.silenceTimer = nil
	}
}

// transcribe runs when the silence timer fires: take the buffered audio,
// transcribe it, and fold the result into the pending transcript.
func (t *Turn) transcribe() {
	t.mu.Lock()
	if t.phase != PhaseActive || t.state != StateListening {
		t.mu.Unlock()
		return
	}
	if t.audioBytes == 0 {
		t.mu.Unlock()
		t.Transition(EventCancel)
		return
	}
	pcm := t.audio
	t.audio = nil
	t.audioBytes = 0
	t.mu.Unlock()

	t.Transition(EventSilenceDetected)

	if t.stt == nil {
		t.sink.Error("stt_error", "no transcriber configured", true)
		t.Transition(EventError)
		return
	}
	clip := audio.Encode(pcm, t.sampleRate, 1)
	result, err := t.stt.Transcribe(t.ctx, clip, "audio/wav")
	if !t.IsActive() {
		return
	}
	if err != nil {
		t.sink.Error("stt_error", err.Error(), true)
		t.Transition(EventError)
		return
	}

	cleaned := cleanTranscript(result.Text)
	if t.correct != nil && cleaned != "" {
		cleaned = t.correct(cleaned)
	}
	noisy := isNoise(cleaned)
	newSegment := cleaned
	if noisy {
		newSegment = ""
	}

	t.mu.Lock()
	hadPending := t.pending != ""
	combined := t.pending
	if combined != "" && newSegment != "" {
		combined += " "
	}
	combined += newSegment
	moreAudio := t.audioBytes > 0

	switch {
	case combined == "":
		t.pending = ""
		t.mu.Unlock()
		t.Transition(EventSTTEmpty)

	case noisy && hadPending:
		// Nothing new worth keeping; re-announce what we already have.
		pendingText := t.pending
		t.mu.Unlock()
		t.sink.TranscriptFinal(pendingText, t.id)
		t.Transition(EventSTTDone)

	case moreAudio:
		// The user kept talking during transcription; hold the partial
		// transcript and go back to listening.
		t.pending = combined
		t.rearmSilenceLocked()
		t.mu.Unlock()
		t.Transition(EventAudioResume)

	default:
		t.pending = combined
		t.mu.Unlock()
		t.sink.TranscriptFinal(combined, t.id)
		t.Transition(EventSTTDone)
	}
}

// Think sends text upstream and plays the response. It resets the TTS
// pipeline for the new turn, then consumes the LLM event stream until its
// terminal event.
func (t *Turn) Think(ctx context.Context, text, sessionKey string) {
	t.tts.Reset()
	events := t.llm.SendTranscript(ctx, text, sessionKey, t.id)
	go t.consume(ctx, events)
}

// consume drains one LLM event stream. It keeps draining after a cancel so
// the pipeline goroutine can always finish; post-cancel events are dropped.
func (t *Turn) consume(ctx context.Context, events <-chan pipeline.LLMEvent) {
	first := true
	for ev := range events {
		if t.Phase() == PhaseCancelled {
			continue
		}
		switch ev.Kind {
		case pipeline.LLMToken:
			t.sink.LLMToken(ev.Token, ev.FullText)

		case pipeline.LLMPhrase:
			if first {
				first = false
				t.Transition(EventLLMFirstChunk)
			}
			t.tts.ProcessChunk(ctx, ev.Phrase, ev.PhraseIndex, t.id)

		case pipeline.LLMDone:
			if ev.Cancelled {
				continue
			}
			t.sink.LLMDone(ev.FullText)
			t.tts.Finish(ctx)
			t.Transition(EventLLMDone)

		case pipeline.LLMError:
			t.sink.Error("llm_error", ev.Err.Error(), true)
			t.Transition(EventError)
		}
	}
}

// Cancel abandons the turn: pipelines are cancelled, timers released, and a
// terminal idle (without a turn id) announced to the client. Idempotent.
func (t *Turn) Cancel() {
	t.mu.Lock()
	if t.phase != PhaseActive {
		t.mu.Unlock()
		return
	}
	t.phase = PhaseCancelled
	t.state = StateIdle
	t.stopSilenceLocked()
	t.mu.Unlock()

	t.llm.Cancel()
	t.tts.Cancel()
	t.sink.TurnState(StateIdle, "")
	if t.onCancelled != nil {
		t.onCancelled(t.id)
	}
}

// noiseWords are fillers the STT engine hears in near-silence.
var noiseWords = map[string]struct{}{
	"m": {}, "mm": {}, "mmm": {}, "mhm": {}, "hm": {}, "hmm": {}, "hn": {},
	"uh": {}, "um": {}, "ah": {}, "oh": {}, "eh": {}, "er": {},
}

// cleanTranscript strips decoder artifacts and collapses whitespace.
func cleanTranscript(text string) string {
	text = strings.ReplaceAll(text, "<unk>", "")
	return strings.Join(strings.Fields(text), " ")
}

// isNoise reports whether a cleaned transcript carries no real speech:
// empty, all filler words, or the same short word stuttered.
func isNoise(text string) bool {
	if text == "" {
		return true
	}
	words := strings.Fields(strings.ToLower(text))

	allNoise := true
	for _, w := range words {
		if _, ok := noiseWords[strings.Trim(w, ".,!?")]; !ok {
			allNoise = false
			break
		}
	}
	if allNoise {
		return true
	}

	if len(words) >= 2 && len(words[0]) <= 3 {
		identical := true
		for _, w := range words[1:] {
			if w != words[0] {
				identical = false
				break
			}
		}
		if identical {
			return true
		}
	}
	return false
}
