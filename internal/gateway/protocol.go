// Package gateway implements the WebSocket surface of voxgate: the /ws
// endpoint, the per-connection message loop, and the slash-command handler.
//
// One goroutine per connection reads frames; a single writer goroutine owns
// the socket so that JSON and binary frames interleave in a defined order
// (every tts_meta precedes the clip bytes it announces). All other
// per-connection state lives behind the connection's mutex.
package gateway

import (
	"encoding/json"

	"github.com/voxgate/voxgate/internal/pipeline"
	"github.com/voxgate/voxgate/internal/stt"
	"github.com/voxgate/voxgate/pkg/provider/llm"
)

// Client → server message types.
const (
	msgPing           = "ping"
	msgTranscriptSend = "transcript_send"
	msgCommand        = "command"
	msgBargeIn        = "barge_in"
	msgCancel         = "cancel"
	msgConfig         = "config"
)

// clientMessage is the union of all JSON frames a client may send. Type
// selects which of the remaining fields are meaningful.
type clientMessage struct {
	Type     string           `json:"type"`
	Ts       int64            `json:"ts,omitempty"`
	Text     string           `json:"text,omitempty"`
	TurnID   string           `json:"turnId,omitempty"`
	Name     string           `json:"name,omitempty"`
	Args     []string         `json:"args,omitempty"`
	Settings *SessionSettings `json:"settings,omitempty"`
}

// SessionSettings is the payload of a config message. Nil fields are left
// untouched by the merge, so a client can update a single setting.
type SessionSettings struct {
	Model       *string `json:"model,omitempty"`
	Agent       *string `json:"agent,omitempty"`
	Voice       *string `json:"voice,omitempty"`
	TTSProvider *string `json:"ttsProvider,omitempty"`
	STTProvider *string `json:"sttProvider,omitempty"`
	SessionKey  *string `json:"sessionKey,omitempty"`

	// AutoSendDelayMs and VADSensitivity tune client-side behavior (pending
	// auto-submit and voice-activity detection). The server stores them so a
	// config round-trip does not lose them.
	AutoSendDelayMs *int     `json:"autoSendDelayMs,omitempty"`
	VADSensitivity  *float64 `json:"vadSensitivity,omitempty"`
}

// Server → client messages. Each type carries its own struct so the writer
// queue can marshal without reflection tricks.

type pongMsg struct {
	Type     string `json:"type"`
	Ts       int64  `json:"ts"`
	ServerTs int64  `json:"serverTs"`
}

type errorMsg struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type turnStateMsg struct {
	Type   string `json:"type"`
	State  string `json:"state"`
	TurnID string `json:"turnId,omitempty"`
}

type transcriptPartialMsg struct {
	Type string `json:"type"`
	stt.Partial
}

type transcriptFinalMsg struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	TurnID string `json:"turnId"`
}

type llmTokenMsg struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	FullText string `json:"fullText"`
}

type llmDoneMsg struct {
	Type     string `json:"type"`
	FullText string `json:"fullText"`
}

type ttsMetaMsg struct {
	Type string `json:"type"`
	pipeline.ClipMeta
}

type ttsDoneMsg struct {
	Type string `json:"type"`
}

type commandResultMsg struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Result any    `json:"result"`
}

type chatHistoryMsg struct {
	Type       string        `json:"type"`
	SessionKey string        `json:"sessionKey"`
	Messages   []llm.Message `json:"messages"`
}

// mustJSON marshals v, panicking on failure. Every outbound type above is a
// plain struct of marshalable fields, so a failure is a programming error.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic("gateway: marshal outbound message: " + err.Error())
	}
	return b
}
