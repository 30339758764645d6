package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/agent"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/pipeline"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/internal/session"
	"github.com/voxgate/voxgate/internal/stt"
	"github.com/voxgate/voxgate/internal/transcript"
	"github.com/voxgate/voxgate/internal/turn"
	"github.com/voxgate/voxgate/pkg/audio"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

const (
	// defaultMaxTurnAudio caps buffered PCM per turn at 10 MB.
	defaultMaxTurnAudio = 10 << 20

	// defaultKeepalive is the transport ping interval.
	defaultKeepalive = 30 * time.Second

	// defaultSessionKey backs sessions that never pick a key.
	defaultSessionKey = "main"

	// Admission defaults: the message limiter bounds total frame rate, the
	// LLM limiter bounds transcript_send specifically.
	defaultMessageLimit  = 100
	defaultMessageWindow = time.Second
	defaultLLMLimit      = 30
	defaultLLMWindow     = time.Minute
)

// TTSBackend is the slice of the TTS router a connection needs: synthesis
// plus the backend switch driven by the /tts command.
type TTSBackend interface {
	pipeline.Synthesizer
	SetPreferred(name string) error
}

// ConnConfig carries the per-connection dependency stack. STT, TTS, and LLM
// adapters are typically breaker-guarded routers; History and Personas are
// process-wide singletons shared across connections.
type ConnConfig struct {
	// STT transcribes buffered turn audio. Required for the audio path.
	STT turn.Transcriber

	// TTS synthesizes response phrases. Required.
	TTS TTSBackend

	// LLM is the upstream chat-completion provider. Required.
	LLM llm.Provider

	// History is the shared conversation store. Optional; nil creates a
	// connection-private store.
	History *session.Store

	// Personas resolves /agent switches. Optional; nil uses the built-in
	// default persona.
	Personas *agent.Registry

	// Corrector rewrites final transcripts against the configured keywords.
	// Optional.
	Corrector *transcript.Corrector

	// Metrics receives gateway instruments. Optional; nil uses the
	// package-level default.
	Metrics *observe.Metrics

	// Logger receives connection diagnostics. Optional.
	Logger *slog.Logger

	// DefaultModel is used when neither the session nor the persona pins one.
	DefaultModel string

	// Temperature and MaxTokens pass through to the LLM pipeline.
	Temperature float64
	MaxTokens   int

	// SilenceTimeout overrides the turn's 1500 ms silence window.
	SilenceTimeout time.Duration

	// SampleRate of client PCM. Defaults to 16000.
	SampleRate int

	// MaxTurnAudioBytes caps buffered PCM per turn. Defaults to 10 MB.
	MaxTurnAudioBytes int

	// KeepaliveInterval overrides the 30 s transport ping.
	KeepaliveInterval time.Duration

	// MessageLimit/MessageWindow tune the global frame limiter.
	MessageLimit  int
	MessageWindow time.Duration

	// LLMLimit/LLMWindow tune the transcript_send limiter.
	LLMLimit  int
	LLMWindow time.Duration

	// Rolling tunes the partial-transcript decoder. OnPartial, OnFinal, and
	// Logger are owned by the connection.
	Rolling stt.RollingConfig

	// Close releases per-connection resources when the connection ends,
	// typically the breaker timers inside the STT and TTS routers. Optional.
	Close func()
}

// outFrame is one queued socket write.
type outFrame struct {
	binary  bool
	payload []byte
}

// Conn handles one WebSocket connection end to end.
type Conn struct {
	ws      *websocket.Conn
	cfg     ConnConfig
	log     *slog.Logger
	metrics *observe.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	history  *session.Store
	personas *agent.Registry

	llmPipe *pipeline.LLMPipeline
	ttsPipe *pipeline.TTSPipeline
	rolling *stt.RollingDecoder

	msgLimiter *resilience.RateLimiter
	llmLimiter *resilience.RateLimiter

	writeCh chan outFrame
	writeWG sync.WaitGroup

	mu   sync.Mutex
	sess sessionState
	turn *turn.Turn
}

// sessionState is the per-connection session configuration, mutated by the
// config message and the slash commands.
type sessionState struct {
	model       string
	persona     agent.Persona
	voice       string
	ttsProvider string
	sttProvider string
	sessionKey  string

	// Client-side tuning, held so settings survive a config round-trip.
	autoSendDelayMs int
	vadSensitivity  float64
}

var _ turn.Sink = (*Conn)(nil)

// NewConn builds the component stack for one accepted socket. Call Run to
// start serving; the connection owns no goroutines until then.
func NewConn(ctx context.Context, ws *websocket.Conn, cfg ConnConfig) (*Conn, error) {
	if ws == nil {
		return nil, errors.New("gateway: ConnConfig needs a websocket connection")
	}
	if cfg.TTS == nil || cfg.LLM == nil {
		return nil, errors.New("gateway: ConnConfig.TTS and ConnConfig.LLM must not be nil")
	}
	if cfg.MaxTurnAudioBytes <= 0 {
		cfg.MaxTurnAudioBytes = defaultMaxTurnAudio
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = defaultKeepalive
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = defaultMessageLimit
	}
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = defaultMessageWindow
	}
	if cfg.LLMLimit <= 0 {
		cfg.LLMLimit = defaultLLMLimit
	}
	if cfg.LLMWindow <= 0 {
		cfg.LLMWindow = defaultLLMWindow
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	history := cfg.History
	if history == nil {
		history = session.NewStore(session.StoreConfig{})
	}
	personas := cfg.Personas
	if personas == nil {
		var err error
		personas, err = agent.NewRegistry(nil)
		if err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{
		ws:         ws,
		cfg:        cfg,
		log:        log.With("component", "gateway_conn", "conn_id", uuid.NewString()[:8]),
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		history:    history,
		personas:   personas,
		msgLimiter: resilience.NewRateLimiter(cfg.MessageLimit, cfg.MessageWindow),
		llmLimiter: resilience.NewRateLimiter(cfg.LLMLimit, cfg.LLMWindow),
		writeCh:    make(chan outFrame, 256),
	}
	c.sess = c.initialSession()

	llmPipe, err := pipeline.NewLLMPipeline(pipeline.LLMConfig{
		Provider:     cfg.LLM,
		History:      history,
		SystemPrompt: c.currentSystemPrompt,
		Model:        c.currentModel,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Logger:       c.log,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.llmPipe = llmPipe

	ttsPipe, err := pipeline.NewTTSPipeline(pipeline.TTSConfig{
		Synthesizer: cfg.TTS,
		Voice:       c.currentVoice,
		Logger:      c.log,
		Events: pipeline.TTSEvents{
			Clip: c.sendClip,
			Error: func(turnID string, err error) {
				c.metrics.RecordTTSChunk(ctx, "error")
				c.sendError("tts_error", err.Error())
			},
			Done:      func() { c.send(ttsDoneMsg{Type: "tts_done"}) },
			AllFailed: func() { c.sendError("tts_all_failed", "all speech synthesis failed for this turn") },
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.ttsPipe = ttsPipe

	rollingCfg := cfg.Rolling
	rollingCfg.Logger = c.log
	rollingCfg.OnPartial = func(p stt.Partial) {
		c.send(transcriptPartialMsg{Type: "transcript_partial", Partial: p})
	}
	rollingCfg.OnFinal = nil
	if rollingCfg.SampleRate <= 0 {
		rollingCfg.SampleRate = cfg.SampleRate
	}
	if cfg.STT != nil {
		c.rolling = stt.NewRollingDecoder(cfg.STT, rollingCfg)
	}

	return c, nil
}

// initialSession derives the session defaults from the default persona.
func (c *Conn) initialSession() sessionState {
	p := c.personas.Default()
	model := p.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	return sessionState{
		model:       model,
		persona:     p,
		voice:       p.Voice,
		ttsProvider: p.TTSProvider,
		sttProvider: "parakeet",
		sessionKey:  defaultSessionKey,
	}
}

// Run serves the connection until the peer disconnects or ctx is cancelled.
// It blocks; the caller owns one goroutine per connection.
func (c *Conn) Run() {
	c.writeWG.Add(1)
	go c.writer()
	go c.keepalive()

	c.readLoop()

	// Teardown: abandon the active turn, stop the partial decoder, release
	// the writer. Pipeline goroutines wind down on the cancelled context.
	c.cancel()
	if t := c.activeTurn(); t != nil {
		t.Cancel()
	}
	if c.rolling != nil {
		c.rolling.Reset()
	}
	c.writeWG.Wait()
	if c.cfg.Close != nil {
		c.cfg.Close()
	}
	c.log.Info("connection closed")
}

// readLoop pulls frames until the socket errors out.
func (c *Conn) readLoop() {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.log.Debug("read loop ended", "error", err)
			return
		}

		if !c.msgLimiter.Allow() {
			c.metrics.RecordRateLimitDenial(c.ctx, "message")
			c.sendError("RATE_LIMITED", "too many messages, slow down")
			continue
		}

		switch typ {
		case websocket.MessageBinary:
			c.metrics.RecordWSFrame(c.ctx, "in", "binary")
			c.handleAudio(data)
		case websocket.MessageText:
			c.metrics.RecordWSFrame(c.ctx, "in", "text")
			c.handleJSON(data)
		}
	}
}

// writer is the single goroutine allowed to write the socket.
func (c *Conn) writer() {
	defer c.writeWG.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.writeCh:
			typ := websocket.MessageText
			kind := "text"
			if f.binary {
				typ = websocket.MessageBinary
				kind = "binary"
			}
			if err := c.ws.Write(c.ctx, typ, f.payload); err != nil {
				c.log.Debug("socket write failed", "error", err)
				return
			}
			c.metrics.RecordWSFrame(c.ctx, "out", kind)
		}
	}
}

// keepalive pings the peer on a fixed interval until the connection ends.
func (c *Conn) keepalive() {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				c.log.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

// enqueue hands one frame to the writer. Drops the frame when the connection
// is shutting down.
func (c *Conn) enqueue(f outFrame) {
	select {
	case c.writeCh <- f:
	case <-c.ctx.Done():
	}
}

// send marshals and queues one JSON frame.
func (c *Conn) send(v any) {
	c.enqueue(outFrame{payload: mustJSON(v)})
}

// sendError queues one error frame. Every gateway error is recoverable: the
// connection stays open and the next turn starts clean.
func (c *Conn) sendError(code, message string) {
	c.send(errorMsg{Type: "error", Code: code, Message: message, Recoverable: true})
}

// sendClip queues the metadata and audio of one synthesized clip. The TTS
// pipeline invokes it in strict index order; queueing both frames here keeps
// tts_meta immediately ahead of its binary payload.
func (c *Conn) sendClip(meta pipeline.ClipMeta, clip []byte) {
	c.metrics.RecordTTSChunk(c.ctx, "ok")
	c.enqueue(outFrame{payload: mustJSON(ttsMetaMsg{Type: "tts_meta", ClipMeta: meta})})
	c.enqueue(outFrame{binary: true, payload: clip})
}

// --- binary frames ---

// handleAudio routes one microphone frame into the active turn.
func (c *Conn) handleAudio(data []byte) {
	t := c.activeTurn()
	if t == nil {
		t = c.newTurn("")
		if t == nil {
			return
		}
		t.Transition(turn.EventAudioStart)
		if c.rolling != nil {
			c.rolling.Reset()
			c.rolling.Start(c.ctx)
		}
	} else {
		switch t.State() {
		case turn.StateListening:
			// Mid-utterance frame.
		case turn.StatePendingSend, turn.StateTranscribing:
			t.Transition(turn.EventAudioResume)
			if c.rolling != nil {
				c.rolling.Start(c.ctx)
			}
		default:
			c.log.Warn("audio frame dropped", "state", t.State())
			return
		}
	}

	pcm := audio.StripHeader(data)
	if t.AudioBytes()+len(pcm) > c.cfg.MaxTurnAudioBytes {
		c.sendError("AUDIO_BUFFER_OVERFLOW", "turn audio buffer limit exceeded")
		t.Cancel()
		return
	}
	t.AppendAudio(pcm)
	if c.rolling != nil {
		c.rolling.Append(pcm)
	}
}

// --- JSON frames ---

// handleJSON dispatches one text frame by its type field.
func (c *Conn) handleJSON(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("PARSE_ERROR", "malformed JSON message")
		return
	}

	switch msg.Type {
	case msgPing:
		c.send(pongMsg{Type: "pong", Ts: msg.Ts, ServerTs: time.Now().UnixMilli()})

	case msgTranscriptSend:
		if !c.llmLimiter.Allow() {
			c.metrics.RecordRateLimitDenial(c.ctx, "llm")
			c.sendError("LLM_RATE_LIMITED", "too many requests, slow down")
			return
		}
		c.handleSend(msg.Text, msg.TurnID)

	case msgCommand:
		result := c.executeCommand(msg.Name, msg.Args)
		c.send(commandResultMsg{Type: "command_result", Name: msg.Name, Result: result})

	case msgBargeIn, msgCancel:
		if t := c.activeTurn(); t != nil {
			t.Cancel()
		}

	case msgConfig:
		if msg.Settings != nil {
			c.applySettings(*msg.Settings)
		}

	default:
		c.sendError("UNKNOWN_MESSAGE", "unknown message type "+msg.Type)
	}
}

// handleSend routes a typed or edited transcript into a turn. A fresh turn
// takes the client-supplied id so turn_state frames reconcile on their side.
func (c *Conn) handleSend(text, turnID string) {
	t := c.activeTurn()
	if t == nil {
		t = c.newTurn(turnID)
		if t == nil {
			return
		}
		if t.Transition(turn.EventTextSend) {
			t.Think(c.ctx, text, c.currentSessionKey())
		}
		return
	}

	switch t.State() {
	case turn.StatePendingSend:
		if text == "" {
			text = t.Pending()
		}
		if t.Transition(turn.EventSend) {
			t.Think(c.ctx, text, c.currentSessionKey())
		}
	default:
		c.log.Debug("transcript_send ignored", "state", t.State())
	}
}

// --- turn lifecycle ---

// activeTurn returns the running turn, or nil.
func (c *Conn) activeTurn() *turn.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn != nil && c.turn.IsActive() {
		return c.turn
	}
	return nil
}

// newTurn creates and installs a fresh turn under the given id, minting one
// when the client did not name it.
func (c *Conn) newTurn(id string) *turn.Turn {
	if id == "" {
		id = uuid.NewString()
	}
	t, err := turn.New(c.ctx, turn.Config{
		ID:             id,
		STT:            c.cfg.STT,
		LLM:            c.llmPipe,
		TTS:            c.ttsPipe,
		Sink:           c,
		Correct:        c.correctTranscript,
		SilenceTimeout: c.cfg.SilenceTimeout,
		SampleRate:     c.cfg.SampleRate,
		Logger:         c.log,
		OnStateChange: func(from, to turn.State) {
			c.metrics.RecordTransition(c.ctx, string(from), string(to))
			if to == turn.StateTranscribing && c.rolling != nil {
				c.rolling.Stop()
			}
		},
		OnComplete: func(turnID string) {
			c.metrics.RecordTurn(c.ctx, "completed")
			c.finishTurn(turnID)
		},
		OnCancelled: func(turnID string) {
			c.metrics.RecordTurn(c.ctx, "cancelled")
			c.finishTurn(turnID)
		},
	})
	if err != nil {
		c.log.Error("turn creation failed", "error", err)
		return nil
	}

	c.mu.Lock()
	c.turn = t
	c.mu.Unlock()
	return t
}

// finishTurn releases the per-turn resources once the given turn ends.
func (c *Conn) finishTurn(turnID string) {
	c.mu.Lock()
	if c.turn != nil && c.turn.ID() == turnID {
		c.turn = nil
	}
	c.mu.Unlock()
	if c.rolling != nil {
		c.rolling.Reset()
	}
}

// correctTranscript applies the keyword corrector, if configured.
func (c *Conn) correctTranscript(text string) string {
	if c.cfg.Corrector == nil {
		return text
	}
	return c.cfg.Corrector.Correct(text)
}

// --- turn.Sink ---

// TurnState implements [turn.Sink].
func (c *Conn) TurnState(state turn.State, turnID string) {
	c.send(turnStateMsg{Type: "turn_state", State: string(state), TurnID: turnID})
}

// TranscriptFinal implements [turn.Sink].
func (c *Conn) TranscriptFinal(text, turnID string) {
	c.send(transcriptFinalMsg{Type: "transcript_final", Text: text, TurnID: turnID})
}

// LLMToken implements [turn.Sink].
func (c *Conn) LLMToken(token, fullText string) {
	c.send(llmTokenMsg{Type: "llm_token", Token: token, FullText: fullText})
}

// LLMDone implements [turn.Sink].
func (c *Conn) LLMDone(fullText string) {
	c.send(llmDoneMsg{Type: "llm_done", FullText: fullText})
}

// Error implements [turn.Sink].
func (c *Conn) Error(code, message string, recoverable bool) {
	c.send(errorMsg{Type: "error", Code: code, Message: message, Recoverable: recoverable})
}

// --- session configuration ---

// applySettings merges a config message into the session. A sessionKey change
// re-hydrates the client with the stored history of the new key.
func (c *Conn) applySettings(s SessionSettings) {
	var hydrateKey string

	c.mu.Lock()
	if s.Model != nil {
		c.sess.model = *s.Model
	}
	if s.Agent != nil {
		if p, ok := c.personas.Get(*s.Agent); ok {
			c.applyPersonaLocked(p)
		} else {
			c.log.Warn("config referenced unknown agent", "agent", *s.Agent)
		}
	}
	if s.Voice != nil {
		c.sess.voice = *s.Voice
	}
	if s.STTProvider != nil {
		c.sess.sttProvider = *s.STTProvider
	}
	if s.TTSProvider != nil {
		if err := c.cfg.TTS.SetPreferred(*s.TTSProvider); err != nil {
			c.log.Warn("config referenced unknown tts provider", "provider", *s.TTSProvider)
		} else {
			c.sess.ttsProvider = *s.TTSProvider
		}
	}
	if s.AutoSendDelayMs != nil {
		c.sess.autoSendDelayMs = *s.AutoSendDelayMs
	}
	if s.VADSensitivity != nil {
		c.sess.vadSensitivity = *s.VADSensitivity
	}
	if s.SessionKey != nil && *s.SessionKey != "" && *s.SessionKey != c.sess.sessionKey {
		c.sess.sessionKey = *s.SessionKey
		hydrateKey = *s.SessionKey
	}
	c.mu.Unlock()

	if hydrateKey != "" {
		msgs := c.history.Messages(hydrateKey)
		if msgs == nil {
			msgs = []llm.Message{}
		}
		c.send(chatHistoryMsg{Type: "chat_history", SessionKey: hydrateKey, Messages: msgs})
	}
}

// applyPersonaLocked installs a persona and its pinned settings. Caller holds
// c.mu.
func (c *Conn) applyPersonaLocked(p agent.Persona) {
	c.sess.persona = p
	if p.Voice != "" {
		c.sess.voice = p.Voice
	}
	if p.Model != "" {
		c.sess.model = p.Model
	}
	if p.TTSProvider != "" {
		if err := c.cfg.TTS.SetPreferred(p.TTSProvider); err == nil {
			c.sess.ttsProvider = p.TTSProvider
		}
	}
}

// currentModel resolves the model for the next completion.
func (c *Conn) currentModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.model
}

// currentVoice resolves the voice for the next synthesis.
func (c *Conn) currentVoice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.voice
}

// currentSystemPrompt resolves the active persona's system prompt.
func (c *Conn) currentSystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.persona.SystemPrompt
}

// currentSessionKey resolves the history key for the next send.
func (c *Conn) currentSessionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.sessionKey
}
