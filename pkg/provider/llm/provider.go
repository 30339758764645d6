// Package llm defines the Provider interface for the upstream chat-completion
// backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, a
// local Ollama instance, …) behind a uniform streaming interface the gateway's
// turn pipeline consumes. The gateway selects the model per request because a
// session can switch models mid-conversation with the /model command.
//
// Implementations must be safe for concurrent use: one process-wide provider
// instance is shared by every connection. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends
// or when the supplied context is cancelled.
package llm

import "context"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReasonError is the FinishReason of a chunk carrying a mid-stream
// failure. Its Text holds the error message.
const FinishReasonError = "error"

// Message is a single entry of conversation history.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], or [RoleAssistant].
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// CompletionRequest carries everything the model needs for one response.
// Messages must be non-empty; a zero-value request is invalid.
type CompletionRequest struct {
	// Model is the upstream model identifier, e.g. "gpt-4o-mini". Empty
	// selects the provider's configured default.
	Model string

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history.
	SystemPrompt string

	// Messages is the ordered conversation history; the last entry is the
	// user message driving the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps generated tokens. Zero means the provider default.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty on a chunk that
	// only carries a FinishReason.
	Text string

	// FinishReason is set on the final chunk: "stop", "length", or
	// [FinishReasonError] (with Text holding the message). Empty mid-stream.
	FinishReason string
}

// Usage holds token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a read-only
	// channel emitting [Chunk] values as they arrive. The implementation
	// closes the channel when generation finishes or ctx is cancelled;
	// callers must drain it. Errors after the stream opened surface as a
	// chunk with FinishReason [FinishReasonError]; the error return is
	// non-nil only when the stream could not start at all.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response. A convenience
	// wrapper for callers that do not need incremental output.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
