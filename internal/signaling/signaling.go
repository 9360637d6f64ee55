// Package signaling implements the addressing half of the WebRTC
// relay: extracting the target userId from an rtc.offer/answer/ice
// payload. The payload body itself (SDP or ICE candidate) is never
// parsed or validated — it is forwarded verbatim, opaque to the
// server, so that evolving WebRTC extensions keep working without a
// server-side schema change (spec.md §4.6/§9).
package signaling

import "encoding/json"

// target is the only field of an rtc.* payload the server ever reads.
type target struct {
	ToUserID string `json:"toUserId"`
}

// ExtractTarget pulls the intended recipient's userId out of an
// rtc.offer/answer/ice payload, without touching any other field.
func ExtractTarget(payload []byte) (string, bool) {
	var t target
	if err := json.Unmarshal(payload, &t); err != nil {
		return "", false
	}
	if t.ToUserID == "" {
		return "", false
	}
	return t.ToUserID, true
}
