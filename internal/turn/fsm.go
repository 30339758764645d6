// Package turn models one round trip of a voice conversation: audio capture,
// transcription, the model response, and speech synthesis.
//
// The state machine lives in this file as a pure transition table so every
// legal (state, event) pair is visible in one place. Pairs not listed here
// are silently ignored; a spurious event never corrupts a turn.
package turn

// State is a turn lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateTranscribing State = "transcribing"
	StatePendingSend  State = "pending_send"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
)

// Event drives state transitions.
type Event string

const (
	// EventAudioStart fires on the first audio frame of a turn.
	EventAudioStart Event = "AUDIO_START"
	// EventAudioResume fires when audio arrives while transcription is in
	// progress or a transcript is waiting to be sent.
	EventAudioResume Event = "AUDIO_RESUME"
	// EventSilenceDetected fires when the silence timer elapses.
	EventSilenceDetected Event = "SILENCE_DETECTED"
	// EventSTTDone fires when transcription produced usable text.
	EventSTTDone Event = "STT_DONE"
	// EventSTTEmpty fires when transcription produced nothing usable.
	EventSTTEmpty Event = "STT_EMPTY"
	// EventTextSend fires when the client submits text directly.
	EventTextSend Event = "TEXT_SEND"
	// EventSend fires when a pending transcript is confirmed for sending.
	EventSend Event = "SEND"
	// EventLLMFirstChunk fires on the first speakable phrase of a response.
	EventLLMFirstChunk Event = "LLM_FIRST_CHUNK"
	// EventLLMDone fires when the response finished, audio included.
	EventLLMDone Event = "LLM_DONE"
	// EventBargeIn fires when the user interrupts the assistant.
	EventBargeIn Event = "BARGE_IN"
	// EventCancel fires on an explicit client cancel.
	EventCancel Event = "CANCEL"
	// EventError fires when any stage of the turn fails.
	EventError Event = "ERROR"
)

// transitions is the complete turn state machine.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventAudioStart: StateListening,
		EventTextSend:   StateThinking,
	},
	StateListening: {
		EventSilenceDetected: StateTranscribing,
		EventCancel:          StateIdle,
		EventError:           StateIdle,
	},
	StateTranscribing: {
		EventSTTDone:     StatePendingSend,
		EventSTTEmpty:    StateIdle,
		EventAudioResume: StateListening,
		EventCancel:      StateIdle,
		EventError:       StateIdle,
	},
	StatePendingSend: {
		EventSend:        StateThinking,
		EventTextSend:    StateThinking,
		EventAudioResume: StateListening,
		EventCancel:      StateIdle,
	},
	StateThinking: {
		EventLLMFirstChunk: StateSpeaking,
		EventLLMDone:       StateIdle,
		EventCancel:        StateIdle,
		EventBargeIn:       StateIdle,
		EventError:         StateIdle,
	},
	StateSpeaking: {
		EventLLMDone: StateIdle,
		EventCancel:  StateIdle,
		EventBargeIn: StateIdle,
		EventError:   StateIdle,
	},
}

// Next returns the successor of state under event. ok is false when the
// pair is not a legal transition; callers ignore such events.
func Next(state State, event Event) (State, bool) {
	next, ok := transitions[state][event]
	return next, ok
}
