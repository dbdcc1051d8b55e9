/*
Package relay forwards opaque payloads from one registered user to another.

Chat messages, typing indicators and the WebRTC signaling messages (offer, answer,
ice_candidate) all take the same path: resolve the sender by connection, resolve the
recipient by name, and deliver the event to the recipient alone with the sender's name
attached. Payload contents are never inspected.
*/
package relay

import (
	"github.com/rs/zerolog"

	"callrelay/internal/app/user"
	"callrelay/internal/pkg/errs"
	"callrelay/internal/pkg/logx"
)

// Directory resolves users. *presence.Registry satisfies it.
type Directory interface {
	LookupByConnection(connID string) (user.User, bool)
	LookupByName(name string) (user.User, bool)
}

// Sender delivers one event to one connection.
type Sender interface {
	Send(connID, event string, data any)
}

// Relay is the stateless forwarder.
type Relay struct {
	directory Directory
	sender    Sender
	logger    zerolog.Logger
}

// New returns a Relay resolving through directory and delivering through sender.
func New(directory Directory, sender Sender) *Relay {
	return &Relay{
		directory: directory,
		sender:    sender,
		logger:    logx.Component("Relay"),
	}
}

// Forward delivers event to the connection of toName with fields plus "from" set to the
// sender's name. A client supplied "from" is overwritten.
func (r *Relay) Forward(senderConn, event, toName string, fields map[string]any) *errs.CustomError {
	sender, ok := r.directory.LookupByConnection(senderConn)
	if !ok {
		return errs.NewError(errs.ErrNotRegistered)
	}

	target, ok := r.directory.LookupByName(toName)
	if !ok {
		r.logger.Debug().Str("event", event).Str("from", sender.Name).Str("to", toName).Msg("Relay target not found.")
		return errs.NewError(errs.ErrUserNotFound)
	}

	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["from"] = sender.Name

	r.sender.Send(target.ConnectionID, event, payload)
	return nil
}
