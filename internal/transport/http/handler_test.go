package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"villageops/internal/audit"
	auditmemory "villageops/internal/audit/store/memory"
	"villageops/internal/ingest"
	"villageops/internal/invoke"
	"villageops/internal/lifecycle"
	entitymemory "villageops/internal/lifecycle/store/memory"
)

var testSigningKey = []byte("test-signing-key")

func testToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "admin-1",
		"email": "admin@example.com",
		"role":  "platform_admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSigningKey)
	require.NoError(t, err)
	return signed
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	entities := entitymemory.NewInMemoryStore()
	trail := auditmemory.NewInMemoryStore()
	auditSvc := audit.NewService(trail)

	okInvoker := invoke.Func(func(context.Context, string, map[string]any, time.Duration) (*invoke.Response, error) {
		return &invoke.Response{OK: true}, nil
	})
	engine := lifecycle.NewEngine(entities, auditSvc, lifecycle.WithInvoker(okInvoker))
	pipeline := ingest.NewPipeline(engine, ingest.NewInMemoryReportStore())
	handler := NewHandler(engine, pipeline, auditSvc, slog.Default())

	server := httptest.NewServer(NewRouter(handler, testSigningKey))
	t.Cleanup(server.Close)
	return server
}

func do(t *testing.T, method, url, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func TestRequiresAuthentication(t *testing.T) {
	server := newTestServer(t)

	resp := do(t, http.MethodGet, server.URL+"/api/v1/audit/recent", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body errorResponse
	decode(t, resp, &body)
	assert.Equal(t, "unauthorized", body.Error.Code)
}

func TestRejectsTamperedToken(t *testing.T) {
	server := newTestServer(t)
	token := testToken(t) + "x"

	resp := do(t, http.MethodGet, server.URL+"/api/v1/audit/recent", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCommunityLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := testToken(t)

	resp := do(t, http.MethodPost, server.URL+"/api/v1/communities", token,
		jsonBody(t, createRequest{Fields: map[string]any{"name": "Vista Verde Homes"}}), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created entityResponse
	decode(t, resp, &created)
	assert.Equal(t, "active", created.Status)

	resp = do(t, http.MethodPost, server.URL+"/api/v1/communities/"+created.ID+"/transitions", token,
		jsonBody(t, transitionRequest{Action: "suspend"}), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var suspended entityResponse
	decode(t, resp, &suspended)
	assert.Equal(t, "suspended", suspended.Status)

	// Suspending twice is not a legal transition.
	resp = do(t, http.MethodPost, server.URL+"/api/v1/communities/"+created.ID+"/transitions", token,
		jsonBody(t, transitionRequest{Action: "suspend"}), "application/json")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var failure errorResponse
	decode(t, resp, &failure)
	assert.Equal(t, "invalid_transition", failure.Error.Code)

	resp = do(t, http.MethodGet, server.URL+"/api/v1/communities/"+created.ID+"/audit", token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var trail []auditEntryResponse
	decode(t, resp, &trail)
	require.Len(t, trail, 2)
	assert.Equal(t, "create_community", trail[0].Action)
	assert.Equal(t, "suspend_community", trail[1].Action)
	assert.Equal(t, "admin-1", trail[1].Actor)
}

func TestImportOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := testToken(t)

	resp := do(t, http.MethodPost, server.URL+"/api/v1/communities", token,
		jsonBody(t, createRequest{Fields: map[string]any{"name": "Vista Verde Homes"}}), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var community entityResponse
	decode(t, resp, &community)

	batch := strings.Join([]string{
		"unit_number,type,max_occupancy,floor_area",
		"A-101,bungalow,4,60.5",
		"A-102,duplex,6,72.0",
	}, "\n")
	resp = do(t, http.MethodPost, server.URL+"/api/v1/communities/"+community.ID+"/residences/import",
		token, strings.NewReader(batch), "text/csv")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ingest.BatchResult
	decode(t, resp, &result)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	resp = do(t, http.MethodGet, server.URL+"/api/v1/imports/"+result.BatchID.String(), token, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestImportDuplicateBatchOverHTTP(t *testing.T) {
	server := newTestServer(t)
	token := testToken(t)

	resp := do(t, http.MethodPost, server.URL+"/api/v1/communities", token,
		jsonBody(t, createRequest{Fields: map[string]any{"name": "Vista Verde Homes"}}), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var community entityResponse
	decode(t, resp, &community)

	batch := strings.Join([]string{
		"unit_number,type,max_occupancy,floor_area",
		"A-101,bungalow,4,60.5",
		"A-101,duplex,6,72.0",
	}, "\n")
	resp = do(t, http.MethodPost, server.URL+"/api/v1/communities/"+community.ID+"/residences/import",
		token, strings.NewReader(batch), "text/csv")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var rejected importRejectedResponse
	decode(t, resp, &rejected)
	assert.Equal(t, []string{"A-101"}, rejected.Duplicates)
}

func TestUnknownCollection(t *testing.T) {
	server := newTestServer(t)
	resp := do(t, http.MethodPost, server.URL+"/api/v1/garden-gnomes", testToken(t),
		jsonBody(t, createRequest{}), "application/json")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
