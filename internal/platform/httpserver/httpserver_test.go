package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	server := New(":8080", http.NewServeMux())

	assert.Equal(t, ":8080", server.Addr)
	assert.Equal(t, 5*time.Second, server.ReadHeaderTimeout)
	assert.Equal(t, 2*time.Minute, server.IdleTimeout)
	// Imports stream CSV request bodies, so no whole-request read timeout.
	assert.Zero(t, server.ReadTimeout)
}
