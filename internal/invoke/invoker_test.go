package invoke

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/procedures/vehicle_sticker_decision", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"message":"applied"}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL)
	resp, err := inv.Invoke(context.Background(), "vehicle_sticker_decision",
		map[string]any{"sticker_id": "abc", "action": "approve"}, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "applied", resp.Message)
}

func TestInvokeTimeoutFiresByDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release // never responds within the test timeout
	}))
	defer srv.Close()
	defer close(release)

	inv := NewHTTPInvoker(srv.URL)
	start := time.Now()
	_, err := inv.Invoke(context.Background(), "slow_procedure", nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsRetryable(err), "timeout must not be blindly retryable")
	// deadline plus scheduling slack
	assert.Less(t, elapsed, 2*time.Second)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestInvokeClassifiesServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL)
	_, err := inv.Invoke(context.Background(), "failing", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, ErrorServiceUnavailable, CategoryOf(err))
	assert.True(t, IsRetryable(err))
}

func TestInvokeClassifiesUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL)
	_, err := inv.Invoke(context.Background(), "locked", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, ErrorUnauthorized, CategoryOf(err))
	assert.False(t, IsRetryable(err))
}

func TestInvokeClassifiesUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	inv := NewHTTPInvoker(srv.URL)
	_, err := inv.Invoke(context.Background(), "gone", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, ErrorNetworkUnavailable, CategoryOf(err))
	assert.True(t, IsRetryable(err))
}

func TestInvokeZeroTimeoutUsesDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	inv := NewHTTPInvoker(srv.URL)
	resp, err := inv.Invoke(context.Background(), "quick", nil, 0)
	require.NoError(t, err)
	assert.True(t, resp.OK)
}
