// Package httpserver owns the process's http.Server construction.
package httpserver

import (
	"net/http"
	"time"
)

// Timeout defaults for the funding and checkout API. The write timeout must
// outlive the router's 30s per-request timeout so the middleware, not the
// server, decides how a slow request ends.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 45 * time.Second
	idleTimeout       = 90 * time.Second
)

// New builds the server for the given listen address and root handler.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
