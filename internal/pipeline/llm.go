package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxgate/voxgate/internal/chunker"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// voicePrefix is prepended to every user transcript before it reaches the
// model. It keeps spoken answers short without polluting the stored history.
const voicePrefix = "[[voice]] Be brief.\n"

// HistoryStore is the slice of the session store the LLM pipeline needs.
type HistoryStore interface {
	// Messages returns the conversation history for a session key, oldest
	// first.
	Messages(sessionKey string) []llm.Message

	// Append adds messages to the history for a session key.
	Append(sessionKey string, msgs ...llm.Message)
}

// LLMConfig configures an [LLMPipeline].
type LLMConfig struct {
	// Provider is the upstream chat-completion backend. Required.
	Provider llm.Provider

	// History supplies and records conversation history. Optional; without
	// it every turn is independent.
	History HistoryStore

	// SystemPrompt resolves the active persona's system prompt at send
	// time. Optional.
	SystemPrompt func() string

	// Model resolves the active model name at send time. Optional; empty
	// selects the provider's default.
	Model func() string

	// Temperature and MaxTokens are passed through to the provider.
	// Zero values select provider defaults.
	Temperature float64
	MaxTokens   int

	// Logger receives pipeline diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// LLMPipeline drives one streaming completion at a time for a connection.
// It feeds every delta through the phrase chunker and reports tokens,
// phrases, and exactly one terminal event per send on the returned channel.
//
// All events are emitted by the goroutine started in SendTranscript; Cancel
// only flips flags and aborts the upstream context, so the event channel is
// closed exactly once after its terminal event.
type LLMPipeline struct {
	provider     llm.Provider
	history      HistoryStore
	systemPrompt func() string
	model        func() string
	temperature  float64
	maxTokens    int
	logger       *slog.Logger

	mu        sync.Mutex
	chunker   *chunker.Chunker
	cancel    context.CancelFunc
	active    bool
	fullText  string
	cancelled bool
	terminal  bool
}

// NewLLMPipeline creates a pipeline. cfg.Provider must be non-nil.
func NewLLMPipeline(cfg LLMConfig) (*LLMPipeline, error) {
	if cfg.Provider == nil {
		return nil, errors.New("pipeline: LLMConfig.Provider must not be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMPipeline{
		provider:     cfg.Provider,
		history:      cfg.History,
		systemPrompt: cfg.SystemPrompt,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		logger:       logger.With("component", "llm_pipeline"),
		chunker:      chunker.New(),
	}, nil
}

// SendTranscript starts a streaming completion for one user transcript and
// returns its event stream. The channel carries LLMToken and LLMPhrase
// events followed by exactly one terminal LLMDone or LLMError, then closes.
// Only one send may be active at a time; the turn serializes calls.
func (p *LLMPipeline) SendTranscript(ctx context.Context, text, sessionKey, turnID string) <-chan LLMEvent {
	events := make(chan LLMEvent, 64)
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.active = true
	p.fullText = ""
	p.cancelled = false
	p.terminal = false
	p.chunker.Reset()
	p.mu.Unlock()

	go p.run(ctx, text, sessionKey, turnID, events)
	return events
}

// Cancel aborts the in-flight completion. Idempotent: the first call resets
// the chunker and cancels the upstream context; the stream goroutine then
// winds down and emits LLMDone with Cancelled set. Deltas arriving after
// Cancel are dropped. No-op when no send is active.
func (p *LLMPipeline) Cancel() {
	p.mu.Lock()
	if p.cancelled || !p.active {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	cancel := p.cancel
	p.chunker.Reset()
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// run owns the upstream stream for one send and is the only goroutine that
// writes to events. It closes events after the terminal event.
func (p *LLMPipeline) run(ctx context.Context, text, sessionKey, turnID string, events chan LLMEvent) {
	defer close(events)
	defer func() {
		p.mu.Lock()
		p.active = false
		p.cancel = nil
		p.mu.Unlock()
	}()

	req := p.buildRequest(text, sessionKey)

	chunks, err := p.provider.StreamCompletion(ctx, req)
	if err != nil {
		p.emitTerminal(text, sessionKey, turnID, events, fmt.Errorf("pipeline: start completion: %w", err))
		return
	}

	var streamErr error
	for c := range chunks {
		if c.FinishReason == llm.FinishReasonError {
			streamErr = errors.New(c.Text)
			continue
		}
		if c.Text != "" {
			p.emitToken(turnID, events, c.Text)
		}
	}
	if streamErr != nil {
		streamErr = fmt.Errorf("pipeline: completion stream: %w", streamErr)
	}
	p.emitTerminal(text, sessionKey, turnID, events, streamErr)
}

// emitToken appends one delta, feeds the chunker, and emits the token event
// plus any phrases it produced. Post-cancel deltas are dropped.
func (p *LLMPipeline) emitToken(turnID string, events chan LLMEvent, token string) {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.fullText += token
	fullText := p.fullText
	phrases := p.chunker.Feed(token, false)
	p.mu.Unlock()

	events <- LLMEvent{Kind: LLMToken, TurnID: turnID, Token: token, FullText: fullText}
	for _, ph := range phrases {
		events <- LLMEvent{Kind: LLMPhrase, TurnID: turnID, Phrase: ph.Text, PhraseIndex: ph.Index}
	}
}

// emitTerminal emits the single terminal event for one send: LLMDone with
// Cancelled set when the send was cancelled, LLMError on failure, otherwise
// the flushed tail phrases followed by LLMDone. On success the exchange is
// appended to the session history.
func (p *LLMPipeline) emitTerminal(text, sessionKey, turnID string, events chan LLMEvent, err error) {
	p.mu.Lock()
	if p.terminal {
		p.mu.Unlock()
		return
	}
	p.terminal = true
	cancelled := p.cancelled
	fullText := p.fullText
	var phrases []chunker.Chunk
	if !cancelled && err == nil {
		phrases = p.chunker.Feed("", true)
	}
	p.mu.Unlock()

	switch {
	case cancelled:
		events <- LLMEvent{Kind: LLMDone, TurnID: turnID, FullText: fullText, Cancelled: true}
	case err != nil:
		p.logger.Warn("completion failed", "turn_id", turnID, "error", err)
		events <- LLMEvent{Kind: LLMError, TurnID: turnID, Err: err}
	default:
		for _, ph := range phrases {
			events <- LLMEvent{Kind: LLMPhrase, TurnID: turnID, Phrase: ph.Text, PhraseIndex: ph.Index}
		}
		events <- LLMEvent{Kind: LLMDone, TurnID: turnID, FullText: fullText}
		if p.history != nil {
			p.history.Append(sessionKey,
				llm.Message{Role: llm.RoleUser, Content: text},
				llm.Message{Role: llm.RoleAssistant, Content: fullText},
			)
		}
		p.logger.Debug("completion finished", "turn_id", turnID, "chars", len(fullText))
	}
}

// buildRequest assembles the upstream request: persona system prompt,
// session history, then the voice-prefixed user transcript.
func (p *LLMPipeline) buildRequest(text, sessionKey string) llm.CompletionRequest {
	var messages []llm.Message
	if p.history != nil {
		messages = append(messages, p.history.Messages(sessionKey)...)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: voicePrefix + text})

	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	if p.systemPrompt != nil {
		req.SystemPrompt = p.systemPrompt()
	}
	if p.model != nil {
		req.Model = p.model()
	}
	return req
}
