package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":         []byte("not json at all"),
		"wrong version":    []byte(`{"v":2,"type":"hello"}`),
		"missing type":     []byte(`{"v":1}`),
		"empty type":       []byte(`{"v":1,"type":""}`),
		"array not object": []byte(`[1,2,3]`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Decode(raw)
			assert.False(t, ok)
		})
	}
}

func TestDecode_AcceptsWellFormed(t *testing.T) {
	env, ok := Decode([]byte(`{"v":1,"type":"wb.undo","roomId":"r1","userId":"u1","payload":{}}`))
	require.True(t, ok)
	assert.Equal(t, "wb.undo", env.Type)
	assert.Equal(t, "r1", env.RoomID)
	assert.Equal(t, "u1", env.UserID)
}

func TestOutboundEncodeRoundTrip(t *testing.T) {
	env, err := Outbound(TypeWBHistory, "r1", "u1", map[string]any{"canUndo": true, "undoCount": 2})
	require.NoError(t, err)
	assert.Equal(t, ProtocolVersion, env.V)

	raw, err := Encode(env)
	require.NoError(t, err)

	decoded, ok := Decode(raw)
	require.True(t, ok)
	assert.Equal(t, TypeWBHistory, decoded.Type)

	var payload struct {
		CanUndo   bool `json:"canUndo"`
		UndoCount int  `json:"undoCount"`
	}
	require.NoError(t, DecodePayload(decoded, &payload))
	assert.True(t, payload.CanUndo)
	assert.Equal(t, 2, payload.UndoCount)
}

func TestDecodePayload_EmptyTreatedAsObject(t *testing.T) {
	env := Envelope{V: ProtocolVersion, Type: TypeWBUndo}
	var dst map[string]any
	require.NoError(t, DecodePayload(env, &dst))
}
