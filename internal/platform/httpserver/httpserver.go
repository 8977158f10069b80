package httpserver

import (
	"net/http"
	"time"
)

// New builds the engine's HTTP server. Header reads and idle keep-alives are
// bounded; there is no whole-request read timeout because bulk imports stream
// CSV bodies of arbitrary size.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
