/*
Package chat implements the WebSocket side of the relay.

This file defines the JSON frame exchanged in both directions and the event names and
payloads that are not owned by the presence package.
*/
package chat

import (
	"encoding/json"
	"time"
)

// Envelope is the frame exchanged over the socket: {"event": "...", "data": ...}.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound events.
const (
	EventRegisterUser = "register_user"
	EventSetNickname  = "set_nickname"
	EventHeartbeat    = "heartbeat"
	EventSendMessage  = "send_message"
	EventTyping       = "typing"
	EventCallRequest  = "call_request"
	EventAcceptCall   = "accept_call"
	EventEndCall      = "end_call"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice_candidate"
)

// Outbound events. Call events and name list broadcasts live in package presence.
const (
	EventConnectionStatus    = "connection_status"
	EventRegistrationSuccess = "registration_success"
	EventRegistrationError   = "registration_error"
	EventNicknameSet         = "nickname_set"
	EventNicknameTaken       = "nickname_taken"
	EventReceiveMessage      = "receive_message"
	EventUserTyping          = "user_typing"
	EventError               = "error"
)

// ConnectionStatusPayload is sent once after the socket is accepted. Timestamp is Unix seconds.
type ConnectionStatusPayload struct {
	Status    string  `json:"status"`
	SocketID  string  `json:"socketId"`
	Timestamp float64 `json:"timestamp"`
}

// RegistrationSuccessPayload acknowledges register_user. Token reclaims the name in replace mode.
// Timestamp is Unix seconds.
type RegistrationSuccessPayload struct {
	Username  string  `json:"username"`
	SocketID  string  `json:"socketId"`
	Timestamp float64 `json:"timestamp"`
	Token     string  `json:"token,omitempty"`
}

// NicknameSetPayload acknowledges set_nickname. Timestamp echoes the client's value.
type NicknameSetPayload struct {
	Nickname  string `json:"nickname"`
	Timestamp any    `json:"timestamp"`
}

// ErrorPayload is the data of error and registration_error.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// unixSeconds returns t as fractional Unix seconds.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// encodeEnvelope marshals one outbound frame.
func encodeEnvelope(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}
