/*
Package user contains core data structures and logic related to user identity and call state.

It defines the representation of a registered participant (the User struct), the per-user
call state machine values, and the display name validation rule shared by every
registration style.
*/
package user

import "time"

// CallState is the position of a user in the call state machine.
type CallState string

const (
	// StateIdle means the user is neither ringing nor talking.
	StateIdle CallState = "idle"

	// StateCalling means the user placed a call that the partner has not answered yet.
	StateCalling CallState = "calling"

	// StateRinging means the user is being called by the partner and has not answered yet.
	StateRinging CallState = "ringing"

	// StateInCall means the user and the partner accepted the call.
	StateInCall CallState = "in_call"
)

// IsRinging reports whether s is either side of an unanswered call.
func (s CallState) IsRinging() bool {
	return s == StateCalling || s == StateRinging
}

// User represents one registered display name bound to one live connection.
// Fields use JSON tags for the presence snapshot served over HTTP.
type User struct {
	// Name is the unique display name; immutable once registered.
	Name string `json:"name"`

	// ConnectionID is the transport-assigned identity the name is bound to.
	ConnectionID string `json:"-"`

	// State is the user's call state; StateIdle exactly when Partner is empty.
	State CallState `json:"callState"`

	// Partner is the name of the other party of a pending or active call.
	Partner string `json:"callPartner,omitempty"`

	// StateSince is when State last changed; used to expire unanswered rings.
	StateSince time.Time `json:"-"`

	// LastSeenAt is refreshed on every inbound event from the connection.
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// New returns an idle user bound to connID.
func New(name, connID string, now time.Time) *User {
	return &User{
		Name:         name,
		ConnectionID: connID,
		State:        StateIdle,
		StateSince:   now,
		LastSeenAt:   now,
	}
}

// SetCall moves the user into state with partner.
func (u *User) SetCall(state CallState, partner string, now time.Time) {
	u.State = state
	u.Partner = partner
	u.StateSince = now
}

// ClearCall returns the user to StateIdle with no partner.
func (u *User) ClearCall(now time.Time) {
	u.SetCall(StateIdle, "", now)
}
