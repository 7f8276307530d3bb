package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsekeep/internal/config"
	"pulsekeep/internal/dependencies"
)

func testServer() *Server {
	gin.SetMode(gin.TestMode)
	container := &dependencies.Container{
		Config: &config.Config{
			App: config.AppConfig{Name: "pulsekeep", Version: "test"},
		},
	}
	return New(&Config{Port: 8080, Mode: "release"}, container)
}

func perform(srv *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	srv.GetRouter().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer()
	w := perform(srv, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pulsekeep", body["service"])
}

func TestReadyEndpointWithoutBackends(t *testing.T) {
	srv := testServer()
	w := perform(srv, http.MethodGet, "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Database not connected")
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer()
	w := perform(srv, http.MethodGet, "/nope")

	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
	assert.Equal(t, "/nope", body["path"])
}

func TestPingRejectsMalformedCode(t *testing.T) {
	srv := testServer()

	// The code is validated before any lookup, so junk never reaches the
	// ping service.
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodHead} {
		for _, path := range []string{
			"/ping/not-a-uuid",
			"/ping/not-a-uuid/start",
			"/ping/not-a-uuid/fail",
			"/ping/not-a-uuid/log",
			"/ping/not-a-uuid/7",
		} {
			w := perform(srv, method, path)
			assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", method, path)
		}
	}
}

func TestPingExitStatusValidation(t *testing.T) {
	srv := testServer()

	for _, bad := range []string{"256", "-1", "abc"} {
		w := perform(srv, http.MethodGet, "/ping/not-a-uuid/"+bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, "exit status %q", bad)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer()

	w := perform(srv, http.MethodGet, "/healthz")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	w = httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, req)
	assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))
}
