package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tasklist/internal/model"
)

// =========================================================================
// STORAGE / SESSION
// =========================================================================

func TestFileStorage_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	fs1, err := OpenFileStorage(path)
	require.NoError(t, err)
	_, ok := fs1.Get(KeyAuthToken)
	assert.False(t, ok, "missing file is an empty store")

	require.NoError(t, fs1.Set(KeyAuthToken, "tok-1"))
	require.NoError(t, fs1.Set("other", "x"))
	require.NoError(t, fs1.Delete("other"))

	fs2, err := OpenFileStorage(path)
	require.NoError(t, err)
	v, ok := fs2.Get(KeyAuthToken)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)
	_, ok = fs2.Get("other")
	assert.False(t, ok)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileStorage(path)
	assert.Error(t, err)
}

func TestSession(t *testing.T) {
	s := NewSession(NewMemoryStorage())
	assert.False(t, s.IsAuthenticated())
	_, ok := s.User()
	assert.False(t, ok)
	assert.Empty(t, s.Tasks())

	user := model.User{ID: "u1", Email: "alice@example.com"}
	require.NoError(t, s.Begin("tok", user))
	assert.True(t, s.IsAuthenticated())
	got, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, user.Email, got.Email)

	require.NoError(t, s.SetTasks([]model.Task{{ID: "t1", Description: "buy milk"}}))
	assert.Len(t, s.Tasks(), 1)

	require.NoError(t, s.Clear())
	assert.False(t, s.IsAuthenticated())
	_, ok = s.User()
	assert.False(t, ok)
	assert.Len(t, s.Tasks(), 1, "Clear leaves the snapshot to the caller")

	require.NoError(t, s.ClearTasks())
	assert.Empty(t, s.Tasks())
}

func TestSession_EmptyTokenIsNotAuthenticated(t *testing.T) {
	store := NewMemoryStorage()
	require.NoError(t, store.Set(KeyAuthToken, ""))
	assert.False(t, NewSession(store).IsAuthenticated())
}

// =========================================================================
// GATEWAY
// =========================================================================

// newTestGateway returns a gateway whose sleeps are recorded, not slept.
func newTestGateway(t *testing.T, url string, session *Session) (*Gateway, *[]time.Duration) {
	t.Helper()
	var delays []time.Duration
	g := NewGateway(url, session, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	g.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return g, &delays
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func loggedIn(t *testing.T) *Session {
	t.Helper()
	s := NewSession(NewMemoryStorage())
	require.NoError(t, s.Begin("tok-abc", model.User{ID: "u1", Email: "alice@example.com"}))
	return s
}

func TestGateway_InjectsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, 200, map[string]any{"tasks": []any{}})
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL, loggedIn(t))
	tasks, err := g.ListTasks(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Equal(t, "Bearer tok-abc", gotAuth)
}

func TestGateway_TokenReadPerRequest(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		writeJSON(w, 200, map[string]any{"tasks": []any{}})
	}))
	defer srv.Close()

	session := loggedIn(t)
	g, _ := newTestGateway(t, srv.URL, session)

	_, err := g.ListTasks(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, session.Begin("tok-new", model.User{ID: "u2"}))
	_, err = g.ListTasks(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer tok-abc", "Bearer tok-new"}, gotAuth)
}

func TestGateway_NoTokenMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL, NewSession(NewMemoryStorage()))
	_, err := g.ListTasks(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, hits.Load())
}

func TestGateway_RetriesIdempotentOn5xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			writeJSON(w, 503, map[string]string{"error": "unavailable", "message": "service temporarily unavailable"})
			return
		}
		writeJSON(w, 200, map[string]any{"task": map[string]any{"id": "t1", "completed": true}})
	}))
	defer srv.Close()

	g, delays := newTestGateway(t, srv.URL, loggedIn(t))
	done := true
	task, err := g.UpdateTask(context.Background(), "t1", model.TaskPatch{Completed: &done})
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.EqualValues(t, 3, hits.Load())
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, *delays)
}

func TestGateway_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, 500, map[string]string{"error": "internal_error", "message": "An internal error occurred"})
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL, loggedIn(t))
	err := g.DeleteTask(context.Background(), "t1")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Status)
	assert.Equal(t, "internal_error", apiErr.Type)
	assert.EqualValues(t, 3, hits.Load())
}

func TestGateway_NeverRetries4xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, 404, map[string]string{"error": "not_found", "message": "task not found with id t9"})
	}))
	defer srv.Close()

	g, delays := newTestGateway(t, srv.URL, loggedIn(t))
	err := g.DeleteTask(context.Background(), "t9")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
	assert.EqualValues(t, 1, hits.Load())
	assert.Empty(t, *delays)
}

func TestGateway_CreateIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, 503, map[string]string{"error": "unavailable"})
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL, loggedIn(t))
	_, err := g.CreateTask(context.Background(), "buy milk")
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestGateway_NetworkErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens any more

	g, delays := newTestGateway(t, url, loggedIn(t))
	_, err := g.ListTasks(context.Background(), nil)
	require.Error(t, err)
	assert.Len(t, *delays, 2, "three attempts, two backoffs")
}

func TestGateway_401IsSessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]string{"error": "unauthorized", "message": "invalid or expired token"})
	}))
	defer srv.Close()

	g, delays := newTestGateway(t, srv.URL, loggedIn(t))
	_, err := g.ListTasks(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Empty(t, *delays)

	// On login the same status means wrong credentials.
	_, err = g.Login(context.Background(), "alice@example.com", "nope")
	assert.False(t, errors.Is(err, ErrSessionExpired))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
}

func TestGateway_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		assert.Equal(t, "alice@example.com", in["email"])
		writeJSON(w, 200, map[string]any{"token": "tok", "user": map[string]any{"id": "u1", "email": in["email"]}})
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL, NewSession(NewMemoryStorage()))
	res, err := g.Login(context.Background(), "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "u1", res.User.ID)
}

func TestGateway_ListFilterQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, 200, map[string]any{"tasks": nil})
	}))
	defer srv.Close()

	g, _ := newTestGateway(t, srv.URL, loggedIn(t))
	done := false
	tasks, err := g.ListTasks(context.Background(), &done)
	require.NoError(t, err)
	assert.Equal(t, "completed=false", gotQuery)
	assert.NotNil(t, tasks)
}

func TestRetryPolicy_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := DefaultRetryPolicy.do(ctx, sleepCtx, nil, func(context.Context) error {
		calls++
		cancel()
		return &APIError{Status: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
