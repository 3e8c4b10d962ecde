package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeAcceptsKnownTypes(t *testing.T) {
	for _, typ := range []string{
		MsgJoinRoom, MsgPlayerReady, MsgPaddleIntent,
		MsgStartGame, MsgPauseGame, MsgResetGame, MsgLeaveRoom,
	} {
		raw := []byte(`{"event":"` + typ + `","data":{}}`)
		env, err := ParseEnvelope(raw)
		require.NoError(t, err, "type %s", typ)
		assert.Equal(t, typ, env.Type)
	}
}

func TestParseEnvelopeRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"event":"fire_missiles"}`},
		{"missing type", `{"data":{}}`},
		{"malformed json", `{"event":`},
		{"empty frame", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestJoinRoomDataDecoding(t *testing.T) {
	raw := []byte(`{"event":"join_room","data":{"room_key":"abc123","display_name":"Alice","side":1,"vs_ai":true,"difficulty":"hard"}}`)
	env, err := ParseEnvelope(raw)
	require.NoError(t, err)

	var data JoinRoomData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "abc123", data.RoomKey)
	assert.Equal(t, "Alice", data.DisplayName)
	require.NotNil(t, data.Side)
	assert.Equal(t, 1, *data.Side)
	assert.True(t, data.VsAI)
	assert.Equal(t, "hard", data.Difficulty)

	// An omitted side stays nil so the room can pick a free seat.
	env, err = ParseEnvelope([]byte(`{"event":"join_room","data":{"room_key":"abc123"}}`))
	require.NoError(t, err)
	data = JoinRoomData{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Nil(t, data.Side)
}

func TestErrorFrameShape(t *testing.T) {
	b, err := json.Marshal(errorFrame("room_not_found", "no such room"))
	require.NoError(t, err)

	var decoded struct {
		Event string    `json:"event"`
		Data  ErrorData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, EvError, decoded.Event)
	assert.Equal(t, "room_not_found", decoded.Data.Code)
	assert.Equal(t, "no such room", decoded.Data.Message)
}
