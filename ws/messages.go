package ws

import (
	"encoding/json"
	"fmt"
)

// Client → server event types. Anything else is a protocol error and gets
// an explicit error event back, never a silent drop.
const (
	MsgJoinRoom     = "join_room"
	MsgPlayerReady  = "player_ready"
	MsgPaddleIntent = "paddle_intent"
	MsgStartGame    = "start_game"
	MsgPauseGame    = "pause_game"
	MsgResetGame    = "reset_game"
	MsgLeaveRoom    = "leave_room"
)

// Server → client event types.
const (
	EvConnected = "connected"
	EvError     = "error"
)

// Envelope is the tagged wire frame. The payload stays raw until the type
// tag selects a concrete struct to decode into.
type Envelope struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is a server-side frame ready for marshalling.
type Outbound struct {
	Type string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// JoinRoomData carries room membership intent. PlayerID is only honored
// for guests; authenticated connections use the gateway-stamped identity.
type JoinRoomData struct {
	RoomKey     string `json:"room_key"`
	PlayerID    string `json:"player_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Side        *int   `json:"side,omitempty"`
	VsAI        bool   `json:"vs_ai,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
}

type ReadyData struct {
	Ready bool `json:"ready"`
}

type IntentData struct {
	Direction int `json:"direction"`
}

// ErrorData is the payload of every error event.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseEnvelope decodes a wire frame and validates its type tag.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message missing event type")
	}
	switch env.Type {
	case MsgJoinRoom, MsgPlayerReady, MsgPaddleIntent,
		MsgStartGame, MsgPauseGame, MsgResetGame, MsgLeaveRoom:
		return &env, nil
	}
	return nil, fmt.Errorf("unknown event type %q", env.Type)
}

func errorFrame(code, message string) Outbound {
	return Outbound{Type: EvError, Data: ErrorData{Code: code, Message: message}}
}
