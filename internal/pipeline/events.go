// Package pipeline implements the two streaming halves of a voice turn: the
// LLM pipeline, which turns one user transcript into a stream of tokens and
// speakable phrases, and the TTS pipeline, which synthesizes those phrases in
// parallel and delivers the audio clips strictly in order.
//
// Pipelines never hold a reference to the turn that drives them. The LLM
// pipeline reports upward through a channel of [LLMEvent] values; the TTS
// pipeline reports through callbacks injected at construction.
package pipeline

// LLMEventKind discriminates the variants of [LLMEvent].
type LLMEventKind int

const (
	// LLMToken carries one streamed delta. Token holds the new text,
	// FullText the accumulated response so far.
	LLMToken LLMEventKind = iota

	// LLMPhrase carries one speakable phrase cut by the chunker. Phrase and
	// PhraseIndex identify it; indices are contiguous from 0 within a turn.
	LLMPhrase

	// LLMDone is the terminal success event. FullText holds the complete
	// response; Cancelled marks a stream that was aborted mid-flight.
	// Exactly one LLMDone or LLMError is emitted per SendTranscript.
	LLMDone

	// LLMError is the terminal failure event. Err holds the cause.
	LLMError
)

// String returns the lowercase name of the event kind.
func (k LLMEventKind) String() string {
	switch k {
	case LLMToken:
		return "token"
	case LLMPhrase:
		return "phrase"
	case LLMDone:
		return "done"
	case LLMError:
		return "error"
	default:
		return "unknown"
	}
}

// LLMEvent is one entry on the event stream returned by
// [LLMPipeline.SendTranscript]. Which fields are set depends on Kind.
type LLMEvent struct {
	Kind LLMEventKind

	// TurnID identifies the turn the event belongs to.
	TurnID string

	// Token is the incremental delta (LLMToken only).
	Token string

	// FullText is the accumulated response text (LLMToken, LLMDone).
	FullText string

	// Phrase is the chunked phrase text (LLMPhrase only).
	Phrase string

	// PhraseIndex is the zero-based phrase index (LLMPhrase only).
	PhraseIndex int

	// Cancelled marks an LLMDone caused by Cancel rather than completion.
	Cancelled bool

	// Err is the failure cause (LLMError only).
	Err error
}
