/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, upgrading
the HTTP connection to WebSocket, attaching the client to the hub and running its pumps.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"callrelay/internal/app/chat"
	"callrelay/internal/pkg/errs"
	"callrelay/internal/pkg/limiter"
	"callrelay/internal/pkg/logx"
	"callrelay/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Warn("Failed to upgrade connection to WebSocket", "error", err.Error())
			return
		}

		client := chat.NewClient(deps.Manager, conn)
		deps.Manager.Attach(client)

		go client.WritePump()

		logx.Debug("WebSocket connection established", "conn_id", client.ID)

		client.ReadPump()
	}
}
