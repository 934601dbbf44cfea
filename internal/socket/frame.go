// Package socket implements SocketSession: a full-duplex, event-framed
// client over a TLS websocket connection to the control server. The wire
// protocol is a framed, named-event transport with one JSON payload per
// frame; either peer may initiate a frame at any time.
//
// Grounded on original_source/vlaude-core/socket-client/src/client.rs
// (SocketClient), translated from a Socket.IO client (rust_socketio) to a
// raw gorilla/websocket connection — no Socket.IO-shaped library appears
// anywhere in the retrieved pack, so the named-event framing is rebuilt
// directly on top of websocket text frames rather than pulled in whole.
package socket

import "encoding/json"

// frame is the wire representation of one named event: a JSON object
// `{"event": ..., "payload": ...}`, with an extra `"ackId"` field when an
// ack is requested. It does not use Socket.IO's array-based event encoding.
type frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	AckID   string          `json:"ackId,omitempty"`
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Payload: payload})
}

func encodeFrameWithAck(event string, data interface{}, ackID string) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame{Event: event, Payload: payload, AckID: ackID})
}

func decodeFrame(raw []byte) (frame, error) {
	var f frame
	err := json.Unmarshal(raw, &f)
	return f, err
}

// ackFrame is the server's reply to an emit_with_ack request.
type ackFrame struct {
	AckID   string          `json:"ackId"`
	Payload json.RawMessage `json:"payload"`
}

func decodeAck(raw []byte) (ackFrame, bool) {
	var a ackFrame
	if err := json.Unmarshal(raw, &a); err != nil || a.AckID == "" {
		return ackFrame{}, false
	}
	return a, true
}
