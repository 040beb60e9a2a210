package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with the gateway's default timeouts. The write
// timeout leaves room for a slow provider call behind the request timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
