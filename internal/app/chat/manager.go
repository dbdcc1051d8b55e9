/*
Package chat implements the WebSocket side of the relay.

This file defines the Manager struct, the hub every Client attaches to. It implements the
presence Dispatcher (unicast and broadcast of named events), owns the presence Registry and the
inbound Router, and runs the janitor loop that evicts idle users and expires unanswered rings.
*/
package chat

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"callrelay/internal/app/presence"
	"callrelay/internal/app/relay"
	"callrelay/internal/configs"
	"callrelay/internal/pkg/auth/jwt"
	"callrelay/internal/pkg/logx"
)

// Manager struct is responsible for tracking connected clients and delivering events to them.
type Manager struct {
	// clients stores every attached Client, keyed by connection ID.
	clients map[string]*Client

	// mu protects clients. It is always taken after the registry lock, never before.
	mu sync.RWMutex

	// registry is the presence directory and call coordinator.
	registry *presence.Registry

	// router dispatches inbound frames.
	router *Router

	// Config holds the application's read-only configuration settings.
	config *configs.AppConfig

	// stop ends the janitor loop.
	stop     chan struct{}
	stopOnce sync.Once

	// wg is used to wait for the janitor goroutine to finish during shutdown.
	wg sync.WaitGroup

	// structured logger with Manager context.
	logger zerolog.Logger
}

// NewManager constructs the hub, its registry and router, and starts the janitor loop.
// recorder may be nil.
func NewManager(cfg *configs.AppConfig, recorder presence.CallRecorder) *Manager {
	m := &Manager{
		clients: make(map[string]*Client),
		config:  cfg,
		stop:    make(chan struct{}),
		logger:  logx.Component("Manager"),
	}

	tokens := jwt.ResumeTokens{Secret: cfg.JWTSecret}

	m.registry = presence.NewRegistry(m, presence.Options{
		Policy:     cfg.RegistrationPolicy,
		StaleAfter: cfg.StaleAfter,
		Tokens:     tokens,
		Recorder:   recorder,
	})
	m.router = NewRouter(m.registry, relay.New(m.registry, m), m, tokens)

	m.wg.Add(1)
	go m.runJanitor(cfg.SweepInterval)

	return m
}

// Registry returns the presence registry owned by the Manager.
func (m *Manager) Registry() *presence.Registry {
	return m.registry
}

// Attach adds c to the hub and sends it connection_status.
func (m *Manager) Attach(c *Client) {
	m.mu.Lock()
	m.clients[c.ID] = c
	total := len(m.clients)
	m.mu.Unlock()

	m.logger.Info().Str("conn_id", c.ID).Int("connections", total).Msg("Client attached.")

	m.Send(c.ID, EventConnectionStatus, ConnectionStatusPayload{
		Status:    "connected",
		SocketID:  c.ID,
		Timestamp: unixSeconds(time.Now()),
	})
}

// detach removes c from the hub, then runs the disconnect cascade for its user.
func (m *Manager) detach(c *Client) {
	m.mu.Lock()
	if current, ok := m.clients[c.ID]; ok && current == c {
		delete(m.clients, c.ID)
		close(c.send)
	}
	m.mu.Unlock()

	if name, ok := m.registry.Unregister(c.ID); ok {
		m.logger.Info().Str("conn_id", c.ID).Str("name", name).Msg("Registered client disconnected.")
		m.registry.BroadcastNames()
	}
}

// Send queues event for one connection. Unknown connections are ignored.
func (m *Manager) Send(connID, event string, data any) {
	frame, err := encodeEnvelope(event, data)
	if err != nil {
		m.logger.Error().Err(err).Str("event", event).Msg("Failed to encode outbound event.")
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.clients[connID]; ok {
		c.enqueue(frame)
	}
}

// Broadcast queues event for every attached connection.
func (m *Manager) Broadcast(event string, data any) {
	frame, err := encodeEnvelope(event, data)
	if err != nil {
		m.logger.Error().Err(err).Str("event", event).Msg("Failed to encode broadcast event.")
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		c.enqueue(frame)
	}
}

// Kick closes one connection with a custom close code.
func (m *Manager) Kick(connID string, code int, reason string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.clients[connID]; ok {
		c.Kick(code, reason)
	}
}

// ConnectionCount returns the number of attached clients.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.clients)
}

// runJanitor periodically sweeps idle users and unanswered rings until Shutdown.
func (m *Manager) runJanitor(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", interval).Msg("Janitor loop started.")

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			m.logger.Info().Msg("Janitor loop stopped.")
			return
		}
	}
}

// sweep evicts idle users, closes their sockets and expires unanswered rings.
func (m *Manager) sweep() {
	evicted := m.registry.EvictStale(m.config.StaleAfter)
	for _, e := range evicted {
		m.Kick(e.ConnectionID, WsCloseCodeIdleEvicted, "Evicted after inactivity.")
	}
	if len(evicted) > 0 {
		m.registry.BroadcastNames()
	}

	if m.config.RingTimeout > 0 {
		m.registry.ExpireRings(m.config.RingTimeout)
	}
}

// Shutdown stops the janitor and closes every client's send queue, which makes each
// WritePump send a close frame and exit.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down Manager...")

	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()

	m.mu.Lock()
	for id, c := range m.clients {
		close(c.send)
		delete(m.clients, id)
	}
	m.mu.Unlock()

	m.logger.Info().Msg("Manager shutdown complete.")
}
