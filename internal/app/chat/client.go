/*
Package chat implements the WebSocket side of the relay.

This file defines the Client struct, representing an active WebSocket connection. It manages the
connection's lifecycle and the two pumps: ReadPump feeds inbound frames to the Router in arrival
order, WritePump drains the send queue, keeps the heartbeat going and performs kicks.
*/
package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"callrelay/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client. SDP offers can be large.
	maxMessageSize = 64 * 1024

	// size of the per-client outbound queue.
	sendQueueSize = 256

	// WsCloseCodeSessionKicked is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that its name was taken over by a new connection.
	WsCloseCodeSessionKicked = 4001

	// WsCloseCodeIdleEvicted signals that the connection was dropped after staying idle too long.
	WsCloseCodeIdleEvicted = 4002
)

// kickRequest asks WritePump to close the socket with a custom close frame.
type kickRequest struct {
	code   int
	reason string
}

// Client struct represents an active WebSocket connection.
type Client struct {
	// ID is the connection identity used by the presence registry.
	ID string

	// hub the client is attached to.
	manager *Manager

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be sent to the client.
	// Only the Manager closes it.
	send chan []byte

	// kick carries at most one pending close request.
	kick chan kickRequest

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs and returns a new Client with a fresh connection identity.
func NewClient(manager *Manager, wsConn *websocket.Conn) *Client {
	id := uuid.NewString()

	return &Client{
		ID:      id,
		manager: manager,
		conn:    wsConn,
		send:    make(chan []byte, sendQueueSize),
		kick:    make(chan kickRequest, 1),
		logger:  logx.Component("Client").With().Str("conn_id", id).Logger(),
	}
}

// ReadPump reads frames from the WebSocket connection until it fails, then detaches the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		c.manager.router.Handle(c.ID, messageBytes)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when the client's ReadPump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.manager.detach(c)

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump handles writing frames from the Client.send channel to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case req := <-c.kick:
			c.writeKick(req)
			return

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage handles frames pulled from the send channel, writing them to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// writeKick sends the custom close frame of req.
func (c *Client) writeKick(req kickRequest) {
	c.logger.Warn().
		Int("close_code", req.code).
		Str("reason", req.reason).
		Msg("Sending WS Kick message and closing connection.")

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on kick")
		return
	}

	closeMessage := websocket.FormatCloseMessage(req.code, req.reason)
	if err := c.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send WS kick close message.")
	}
}

// enqueue queues a frame without blocking; it reports false when the queue is full.
// The caller holds the Manager lock, so send is open.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return false
	}
}

// Kick asks the write pump to close the connection with code and reason.
func (c *Client) Kick(code int, reason string) {
	select {
	case c.kick <- kickRequest{code: code, reason: reason}:
	default:
	}
}
