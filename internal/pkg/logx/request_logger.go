/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains middleware functions for HTTP routing, used to log request lifecycle information
such as URI, method, response status, and latency. It also implements an IP address anonymization
feature so that connection logs never carry full client addresses.
*/
package logx

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// AnonymizeIP anonymizes the given IP address string (optionally with a port).
// For IPv4, it zeros out the last octet; for IPv6, it keeps the first half followed by "::".
func AnonymizeIP(ipStr string) string {
	host, _, err := net.SplitHostPort(ipStr)
	if err == nil {
		ipStr = host
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "unknown_ip"
	}

	if ip.IsLoopback() {
		return "127.0.0.1"
	}

	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}

	if v6 := ip.To16(); v6 != nil {
		return v6.Mask(net.CIDRMask(64, 128)).String()
	}

	return ipStr
}

// RequestLogger returns an HTTP middleware function that logs detailed information about the HTTP request.
// It creates a new logger instance for each request and injects it into the request context.
// WebSocket upgrades are logged once when the upgrade starts and once when the socket ends.
func RequestLogger() func(next http.Handler) http.Handler {
	baseLogger := Logger()

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			isUpgrade := strings.EqualFold(r.Header.Get("Upgrade"), "websocket")

			logger := baseLogger.With().
				Str("component", "http").
				Str("request_id", requestID).
				Str("remote_ip", AnonymizeIP(r.RemoteAddr)).
				Str("request_method", r.Method).
				Str("request_uri", r.RequestURI).
				Bool("websocket", isUpgrade).
				Logger()

			r = r.WithContext(logger.WithContext(r.Context()))

			if isUpgrade {
				logger.Debug().Msg("WebSocket upgrade requested")
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t1 := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()

			logEvent := logger.Info()
			if status >= 500 {
				logEvent = logger.Error()
			} else if status >= 400 {
				logEvent = logger.Warn()
			}

			logEvent.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(t1)).
				Msg("Request completed")
		}

		return http.HandlerFunc(fn)
	}
}
