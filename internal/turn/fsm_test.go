package turn

import "testing"

func TestNext_FullVoiceTurnPath(t *testing.T) {
	steps := []struct {
		event Event
		want  State
	}{
		{EventAudioStart, StateListening},
		{EventSilenceDetected, StateTranscribing},
		{EventSTTDone, StatePendingSend},
		{EventSend, StateThinking},
		{EventLLMFirstChunk, StateSpeaking},
		{EventLLMDone, StateIdle},
	}

	state := StateIdle
	for _, step := range steps {
		next, ok := Next(state, step.event)
		if !ok {
			t.Fatalf("Next(%s, %s) not a legal transition", state, step.event)
		}
		if next != step.want {
			t.Fatalf("Next(%s, %s) = %s, want %s", state, step.event, next, step.want)
		}
		state = next
	}
}

func TestNext_TransitionTable(t *testing.T) {
	tests := []struct {
		state State
		event Event
		want  State
		ok    bool
	}{
		{StateIdle, EventAudioStart, StateListening, true},
		{StateIdle, EventTextSend, StateThinking, true},
		{StateIdle, EventLLMDone, "", false},
		{StateIdle, EventCancel, "", false},

		{StateListening, EventSilenceDetected, StateTranscribing, true},
		{StateListening, EventCancel, StateIdle, true},
		{StateListening, EventError, StateIdle, true},
		{StateListening, EventSTTDone, "", false},

		{StateTranscribing, EventSTTDone, StatePendingSend, true},
		{StateTranscribing, EventSTTEmpty, StateIdle, true},
		{StateTranscribing, EventAudioResume, StateListening, true},
		{StateTranscribing, EventCancel, StateIdle, true},
		{StateTranscribing, EventError, StateIdle, true},
		{StateTranscribing, EventSend, "", false},

		{StatePendingSend, EventSend, StateThinking, true},
		{StatePendingSend, EventTextSend, StateThinking, true},
		{StatePendingSend, EventAudioResume, StateListening, true},
		{StatePendingSend, EventCancel, StateIdle, true},
		{StatePendingSend, EventError, "", false},

		{StateThinking, EventLLMFirstChunk, StateSpeaking, true},
		{StateThinking, EventLLMDone, StateIdle, true},
		{StateThinking, EventCancel, StateIdle, true},
		{StateThinking, EventBargeIn, StateIdle, true},
		{StateThinking, EventError, StateIdle, true},
		{StateThinking, EventAudioStart, "", false},

		{StateSpeaking, EventLLMDone, StateIdle, true},
		{StateSpeaking, EventCancel, StateIdle, true},
		{StateSpeaking, EventBargeIn, StateIdle, true},
		{StateSpeaking, EventError, StateIdle, true},
		{StateSpeaking, EventLLMFirstChunk, "", false},
	}

	for _, tt := range tests {
		got, ok := Next(tt.state, tt.event)
		if ok != tt.ok {
			t.Errorf("Next(%s, %s) ok = %v, want %v", tt.state, tt.event, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("Next(%s, %s) = %s, want %s", tt.state, tt.event, got, tt.want)
		}
	}
}

func TestNext_UnknownPairsAreIgnoredNotFatal(t *testing.T) {
	for _, state := range []State{StateIdle, StateListening, StateTranscribing, StatePendingSend, StateThinking, StateSpeaking} {
		if next, ok := Next(state, Event("NO_SUCH_EVENT")); ok {
			t.Errorf("Next(%s, NO_SUCH_EVENT) = %s, want ignored", state, next)
		}
	}
}
