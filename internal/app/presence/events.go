package presence

// Dispatcher delivers named events to connections. Implementations must not block and must
// not call back into the Registry, because the Registry emits while holding its lock.
type Dispatcher interface {
	// Send delivers event to one connection; unknown connections are ignored.
	Send(connID, event string, data any)

	// Broadcast delivers event to every open connection.
	Broadcast(event string, data any)
}

// Outbound events emitted by the Registry.
const (
	EventIncomingCall = "incoming_call"
	EventCallAccepted = "call_accepted"
	EventEndCall      = "end_call"
	EventUsersUpdated = "users_updated"
	EventUpdateUsers  = "update_users"
)

// CallPayload is the data of incoming_call and call_accepted.
// Timestamp is whatever the client sent, echoed untouched; nil when it sent none.
type CallPayload struct {
	From      string `json:"from"`
	Timestamp any    `json:"timestamp"`
}

// EndCallPayload is the data of end_call.
type EndCallPayload struct {
	From   string `json:"from"`
	Reason string `json:"reason,omitempty"`
}

// UsersPayload is the data of users_updated. update_users carries the bare list.
type UsersPayload struct {
	Users []string `json:"users"`
}
