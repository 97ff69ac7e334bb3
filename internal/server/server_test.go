package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tasklist/internal/config"
	sqliteRepo "github.com/sakif/tasklist/internal/repository/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := sqliteRepo.New(":memory:", 1)
	require.NoError(t, err)

	cfg := config.Config{
		Port:           0,
		Env:            config.EnvDevelopment,
		DatabaseURL:    ":memory:",
		DBMaxConns:     1,
		JWTSecret:      "integration-secret-0123456789abcdef",
		TokenTTL:       time.Hour,
		CORSOrigin:     "http://localhost:3000",
		RequestTimeout: 5 * time.Second,
		AuthRateLimit:  10,
	}
	srv, err := NewWithStore(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// call sends a JSON request and decodes the JSON response into a map.
func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func register(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	status, body := call(t, ts, http.MethodPost, "/auth/register", "",
		map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, status, "register %s: %v", email, body)
	return body["token"].(string)
}

func TestAliceScenario(t *testing.T) {
	ts := newTestServer(t)

	token := register(t, ts, "alice@example.com")
	require.NotEmpty(t, token)

	status, body := call(t, ts, http.MethodGet, "/tasks", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["tasks"])

	status, body = call(t, ts, http.MethodPost, "/tasks", token, map[string]string{"description": "buy milk"})
	require.Equal(t, http.StatusCreated, status)
	task := body["task"].(map[string]any)
	assert.Equal(t, "buy milk", task["description"])
	assert.Equal(t, false, task["completed"])
	id := task["id"].(string)

	status, body = call(t, ts, http.MethodPut, "/tasks/"+id, token, map[string]bool{"completed": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["task"].(map[string]any)["completed"])

	status, body = call(t, ts, http.MethodDelete, "/tasks/"+id, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = call(t, ts, http.MethodGet, "/tasks", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{}, body["tasks"])
}

func TestRegisterLoginMe(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice@example.com")

	status, _ := call(t, ts, http.MethodPost, "/auth/register", "",
		map[string]string{"email": "alice@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = call(t, ts, http.MethodPost, "/auth/register", "",
		map[string]string{"email": "bob@example.com", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = call(t, ts, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := call(t, ts, http.MethodPost, "/auth/login", "",
		map[string]string{"email": "alice@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, status)
	token := body["token"].(string)

	status, body = call(t, ts, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "password_hash")
}

func TestTasksRequireToken(t *testing.T) {
	ts := newTestServer(t)

	status, body := call(t, ts, http.MethodGet, "/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "no token provided", body["message"])

	status, body = call(t, ts, http.MethodGet, "/tasks", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid or expired token", body["message"])
}

func TestCrossUserAccess(t *testing.T) {
	ts := newTestServer(t)
	alice := register(t, ts, "alice@example.com")
	bob := register(t, ts, "bob@example.com")

	_, body := call(t, ts, http.MethodPost, "/tasks", alice, map[string]string{"description": "alice's secret"})
	id := body["task"].(map[string]any)["id"].(string)

	status, _ := call(t, ts, http.MethodGet, "/tasks/"+id, bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, ts, http.MethodPut, "/tasks/"+id, bob, map[string]string{"description": "pwned"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, ts, http.MethodDelete, "/tasks/"+id, bob, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call(t, ts, http.MethodGet, "/tasks/does-not-exist", bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	_, body = call(t, ts, http.MethodGet, "/tasks", bob, nil)
	assert.Empty(t, body["tasks"])

	status, body = call(t, ts, http.MethodGet, "/tasks/"+id, alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice's secret", body["task"].(map[string]any)["description"])
}

func TestHealthAndCORS(t *testing.T) {
	ts := newTestServer(t)

	status, body := call(t, ts, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/tasks", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
