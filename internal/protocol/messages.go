package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event identifies websocket payload variants. Binary frames carry no
// envelope: inbound they are raw audio for transcription, outbound they are
// synthesized speech.
type Event string

const (
	EventTextInput  Event = "text_input"
	EventPing       Event = "ping"
	EventPong       Event = "pong"
	EventTranscript Event = "transcript"
	EventLLMToken   Event = "llm_token"
)

// ErrNotControl marks frames that do not parse as JSON and must be routed
// to the transcription session as raw audio.
var ErrNotControl = errors.New("not a control message")

// ErrIgnored marks frames that parse as JSON but carry no recognized route.
// They are dropped silently.
var ErrIgnored = errors.New("ignored control message")

type Envelope struct {
	Event Event `json:"event"`
}

// TextInput bypasses transcription and goes straight to the turn
// orchestrator.
type TextInput struct {
	Event Event  `json:"event"`
	Text  string `json:"text"`
}

// Ping is a liveness probe; the server answers with Pong.
type Ping struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Pong struct {
	Event Event  `json:"event"`
	Data  string `json:"data"`
}

// Transcript carries an interim or final transcription of the user's speech.
type Transcript struct {
	Event Event  `json:"event"`
	Data  string `json:"data"`
}

// LLMToken carries one raw model token for immediate text display.
type LLMToken struct {
	Event Event  `json:"event"`
	Data  string `json:"data"`
}

// ParseClientMessage classifies one inbound frame. Every frame is
// speculatively parsed as JSON first: a control message takes priority over
// the audio route even when it arrives as a binary frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrNotControl
	}

	switch env.Event {
	case EventTextInput:
		var msg TextInput
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrIgnored
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, ErrIgnored
		}
		return msg, nil
	case EventPing:
		var msg Ping
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrIgnored
		}
		return msg, nil
	default:
		return nil, ErrIgnored
	}
}
