// Package envelope implements the wire codec for the hub's JSON
// message protocol: parsing and validating inbound frames, and
// constructing outbound ones. Malformed input is never reported back
// to the sender — see Decode.
package envelope

import "encoding/json"

// ProtocolVersion is the only accepted value of the envelope's v field.
const ProtocolVersion = 1

// Envelope is the uniform wrapper every inbound and outbound message
// carries over the websocket connection.
type Envelope struct {
	V         int             `json:"v"`
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Canonical message types, C→S, S→C, or both.
const (
	TypeHello              = "hello"
	TypeRoomJoin           = "room.join"
	TypeRoomJoined         = "room.joined"
	TypeWBSnapshotRequest  = "wb.snapshot.request"
	TypeWBSnapshot         = "wb.snapshot"
	TypeWBStrokeStart      = "wb.stroke.start"
	TypeWBStrokeMove       = "wb.stroke.move"
	TypeWBStrokeEnd        = "wb.stroke.end"
	TypeWBClear            = "wb.clear"
	TypeWBStrokeRemove     = "wb.stroke.remove"
	TypeWBStrokeRestore    = "wb.stroke.restore"
	TypeWBUndo             = "wb.undo"
	TypeWBRedo             = "wb.redo"
	TypeWBHistory          = "wb.history"
	TypePairCreate         = "pair.create"
	TypePairCreated        = "pair.created"
	TypePairClaim          = "pair.claim"
	TypePairSuccess        = "pair.success"
	TypePairError          = "pair.error"
	TypeRTCPeers           = "rtc.peers"
	TypeRTCPeerJoined      = "rtc.peer.joined"
	TypeRTCPeerLeft        = "rtc.peer.left"
	TypeRTCOffer           = "rtc.offer"
	TypeRTCAnswer          = "rtc.answer"
	TypeRTCIce             = "rtc.ice"
	TypeCursorMove         = "cursor.move"
	TypeChatMessage        = "chat.message"
	TypeChatHistoryRequest = "chat.history.request"
	TypeChatHistory        = "chat.history"
)

// Decode parses a raw inbound frame. It returns ok=false (and a zero
// Envelope) for anything that isn't a well-formed v=1 envelope with a
// non-empty type: unparseable JSON, wrong shape, or a version
// mismatch. Callers must silently drop frames where ok is false — the
// protocol has no per-message NACK (spec: misbehaving clients get no
// oracle).
func Decode(raw []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, false
	}
	if env.V != ProtocolVersion {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}

// Outbound builds an outbound envelope with v and type set, roomId and
// userId taken from roomID and userID (omitted on the wire when empty),
// and payload marshaled from the given value.
func Outbound(msgType, roomID, userID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		V:       ProtocolVersion,
		Type:    msgType,
		RoomID:  roomID,
		UserID:  userID,
		Payload: raw,
	}, nil
}

// Encode marshals an envelope to its wire form.
func Encode(env Envelope) ([]byte, error) {
	env.V = ProtocolVersion
	return json.Marshal(env)
}

// DecodePayload unmarshals an envelope's payload into dst. An empty
// payload is treated as an empty JSON object.
func DecodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return json.Unmarshal([]byte("{}"), dst)
	}
	return json.Unmarshal(env.Payload, dst)
}
