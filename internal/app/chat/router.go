/*
Package chat implements the WebSocket side of the relay.

This file defines the Router, which decodes inbound frames and maps each event onto the
presence registry, the call coordinator or the signaling relay. Every user-facing failure is
reported to the originating connection only; a panic while handling one frame is recovered
and reported as a server error.
*/
package chat

import (
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"callrelay/internal/app/presence"
	"callrelay/internal/app/relay"
	"callrelay/internal/app/user"
	"callrelay/internal/pkg/errs"
	"callrelay/internal/pkg/logx"
)

// Hub delivers events and closes connections. *Manager satisfies it.
type Hub interface {
	presence.Dispatcher
	Kick(connID string, code int, reason string)
}

// Tokens issues resume tokens handed out on registration.
type Tokens interface {
	Issue(name string) (string, error)
}

type eventHandler func(connID string, data gjson.Result) *errs.CustomError

// Router handles inbound frames for all connections.
type Router struct {
	registry *presence.Registry
	relay    *relay.Relay
	hub      Hub
	tokens   Tokens
	handlers map[string]eventHandler
	now      func() time.Time
	logger   zerolog.Logger
}

// signalFields maps each signaling event to the payload field it carries.
var signalFields = map[string]string{
	EventOffer:        "offer",
	EventAnswer:       "answer",
	EventICECandidate: "candidate",
}

// NewRouter wires the event handlers.
func NewRouter(registry *presence.Registry, rl *relay.Relay, hub Hub, tokens Tokens) *Router {
	rt := &Router{
		registry: registry,
		relay:    rl,
		hub:      hub,
		tokens:   tokens,
		now:      time.Now,
		logger:   logx.Component("Router"),
	}

	rt.handlers = map[string]eventHandler{
		EventRegisterUser: rt.handleRegisterUser,
		EventSetNickname:  rt.handleSetNickname,
		EventHeartbeat:    rt.handleHeartbeat,
		EventSendMessage:  rt.handleSendMessage,
		EventTyping:       rt.handleTyping,
		EventCallRequest:  rt.handleCallRequest,
		EventAcceptCall:   rt.handleAcceptCall,
		EventEndCall:      rt.handleEndCall,
		EventOffer:        rt.handleSignal(EventOffer),
		EventAnswer:       rt.handleSignal(EventAnswer),
		EventICECandidate: rt.handleSignal(EventICECandidate),
	}

	return rt
}

// Handle processes one inbound frame from connID.
func (rt *Router) Handle(connID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.logger.Error().
				Str("conn_id", connID).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic while handling event.")
			rt.sendError(connID, errs.NewError(errs.ErrServer))
		}
	}()

	if !gjson.ValidBytes(raw) {
		rt.logger.Warn().Str("conn_id", connID).Msg("Client sent invalid JSON")
		rt.sendError(connID, errs.NewError(errs.ErrMalformedPayload, "message"))
		return
	}

	frame := gjson.ParseBytes(raw)
	event := frame.Get("event").String()
	if event == "" {
		rt.sendError(connID, errs.NewError(errs.ErrMalformedPayload, "message"))
		return
	}

	handler, ok := rt.handlers[event]
	if !ok {
		rt.logger.Warn().Str("conn_id", connID).Str("event", event).Msg("Client sent unsupported event")
		rt.sendError(connID, errs.NewError(errs.ErrUnknownEvent, event))
		return
	}

	rt.registry.Touch(connID)

	if err := handler(connID, frame.Get("data")); err != nil {
		rt.logger.Warn().Str("conn_id", connID).Str("event", event).Str("code", err.Key).Msg("Event rejected.")
		rt.sendError(connID, err)
	}
}

func (rt *Router) sendError(connID string, err *errs.CustomError) {
	rt.hub.Send(connID, EventError, ErrorPayload{Message: err.Message, Code: err.Key})
}

// sender resolves the registered user behind connID.
func (rt *Router) sender(connID string) (user.User, *errs.CustomError) {
	u, ok := rt.registry.LookupByConnection(connID)
	if !ok {
		return user.User{}, errs.NewError(errs.ErrNotRegistered)
	}
	return u, nil
}

func (rt *Router) handleRegisterUser(connID string, data gjson.Result) *errs.CustomError {
	name := firstString(data, "username", "name")
	if name == "" {
		rt.sendRegistrationError(connID, errs.NewError(errs.ErrMissingName))
		return nil
	}

	reg, err := rt.registry.Register(name, connID, data.Get("token").String())
	if err != nil {
		rt.sendRegistrationError(connID, err)
		return nil
	}

	token, tokenErr := rt.tokens.Issue(name)
	if tokenErr != nil {
		rt.logger.Error().Err(tokenErr).Str("name", name).Msg("Failed to issue resume token.")
	}

	rt.hub.Send(connID, EventRegistrationSuccess, RegistrationSuccessPayload{
		Username:  name,
		SocketID:  connID,
		Timestamp: unixSeconds(rt.now()),
		Token:     token,
	})

	rt.afterRegister(reg)
	return nil
}

func (rt *Router) handleSetNickname(connID string, data gjson.Result) *errs.CustomError {
	name := firstString(data, "nickname", "name")
	if name == "" {
		return errs.NewError(errs.ErrMissingName)
	}

	reg, err := rt.registry.Register(name, connID, "")
	if err != nil {
		if err.Code == errs.ErrNameTaken {
			rt.hub.Send(connID, EventNicknameTaken, nil)
			return nil
		}
		return err
	}

	rt.hub.Send(connID, EventNicknameSet, NicknameSetPayload{
		Nickname:  name,
		Timestamp: clientTimestamp(data),
	})

	rt.afterRegister(reg)
	return nil
}

// afterRegister closes a displaced connection and announces the new name list.
func (rt *Router) afterRegister(reg presence.Registration) {
	if reg.Displaced != "" {
		rt.hub.Kick(reg.Displaced, WsCloseCodeSessionKicked, "Session replaced by a new connection.")
	}
	rt.registry.BroadcastNames()
}

func (rt *Router) sendRegistrationError(connID string, err *errs.CustomError) {
	rt.hub.Send(connID, EventRegistrationError, ErrorPayload{Message: err.Message, Code: err.Key})
}

// handleHeartbeat has nothing to do beyond the touch every event gets.
func (rt *Router) handleHeartbeat(string, gjson.Result) *errs.CustomError {
	return nil
}

func (rt *Router) handleSendMessage(connID string, data gjson.Result) *errs.CustomError {
	to := data.Get("to").String()
	message := data.Get("message")
	if to == "" || !present(message) {
		return errs.NewError(errs.ErrMalformedPayload, EventSendMessage)
	}

	return rt.relay.Forward(connID, EventReceiveMessage, to, map[string]any{
		"message":   json.RawMessage(message.Raw),
		"timestamp": clientTimestamp(data),
	})
}

// handleTyping forwards the indicator on a best-effort basis; failures are not reported.
func (rt *Router) handleTyping(connID string, data gjson.Result) *errs.CustomError {
	to := data.Get("to").String()
	if to == "" {
		return nil
	}

	isTyping := data.Get("isTyping").Bool()

	if err := rt.relay.Forward(connID, EventUserTyping, to, map[string]any{"isTyping": isTyping}); err != nil {
		rt.logger.Debug().Str("conn_id", connID).Str("code", err.Key).Msg("Typing indicator dropped.")
	}
	return nil
}

func (rt *Router) handleCallRequest(connID string, data gjson.Result) *errs.CustomError {
	me, err := rt.sender(connID)
	if err != nil {
		return err
	}

	to := data.Get("to").String()
	if to == "" {
		return errs.NewError(errs.ErrMalformedPayload, EventCallRequest)
	}

	return rt.registry.RequestCall(me.Name, to, clientTimestamp(data))
}

func (rt *Router) handleAcceptCall(connID string, data gjson.Result) *errs.CustomError {
	me, err := rt.sender(connID)
	if err != nil {
		return err
	}

	from := data.Get("from").String()
	if from == "" {
		return errs.NewError(errs.ErrMalformedPayload, EventAcceptCall)
	}

	return rt.registry.AcceptCall(me.Name, from, clientTimestamp(data))
}

func (rt *Router) handleEndCall(connID string, data gjson.Result) *errs.CustomError {
	me, err := rt.sender(connID)
	if err != nil {
		return err
	}

	to := data.Get("to").String()
	if to == "" {
		return errs.NewError(errs.ErrMalformedPayload, EventEndCall)
	}

	rt.registry.EndCall(me.Name, to)
	return nil
}

// handleSignal forwards one WebRTC signaling payload untouched.
func (rt *Router) handleSignal(event string) eventHandler {
	field := signalFields[event]

	return func(connID string, data gjson.Result) *errs.CustomError {
		to := data.Get("to").String()
		payload := data.Get(field)
		if to == "" || !present(payload) {
			return errs.NewError(errs.ErrMalformedPayload, event)
		}

		return rt.relay.Forward(connID, event, to, map[string]any{
			field: json.RawMessage(payload.Raw),
		})
	}
}

// clientTimestamp returns the raw timestamp the client sent, or nil when it sent none.
func clientTimestamp(data gjson.Result) any {
	if ts := data.Get("timestamp"); ts.Exists() {
		return json.RawMessage(ts.Raw)
	}
	return nil
}

// present reports whether v holds a value other than null or an empty string.
func present(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return false
	case gjson.String:
		return v.String() != ""
	default:
		return true
	}
}

// firstString returns the first non-empty string among keys. A bare string payload counts too.
func firstString(data gjson.Result, keys ...string) string {
	if data.Type == gjson.String {
		return data.String()
	}
	for _, key := range keys {
		if v := data.Get(key); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
