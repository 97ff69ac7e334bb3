package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/tasklist/internal/model"
)

var (
	// ErrSessionExpired is returned when the server rejects the stored token.
	ErrSessionExpired = errors.New("client: session expired")
	// ErrNotAuthenticated is returned for an authenticated call with no token.
	ErrNotAuthenticated = errors.New("client: not authenticated")
)

// APIError is a non-2xx response decoded from the server's error body.
type APIError struct {
	Status  int    `json:"-"`
	Type    string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// AuthResult is the body of a successful register or login.
type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Gateway calls the task API. Authenticated calls go through an
// oauth2.Transport that reads the bearer token from the Session.
type Gateway struct {
	baseURL string
	anon    *http.Client
	authed  *http.Client
	retry   RetryPolicy
	sleep   sleepFunc
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTransport replaces the underlying round tripper (both clients).
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) {
		g.anon.Transport = rt
		g.authed.Transport.(*oauth2.Transport).Base = rt
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithLogger sets the logger used for retry messages.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a Gateway for baseURL, e.g. "http://localhost:8080".
func NewGateway(baseURL string, session *Session, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		anon:    &http.Client{Timeout: 15 * time.Second},
		authed: &http.Client{
			Timeout:   15 * time.Second,
			Transport: &oauth2.Transport{Source: sessionTokenSource{session: session}},
		},
		retry:  DefaultRetryPolicy,
		sleep:  sleepCtx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register creates an account. Not retried: a retry after a lost response
// would report a conflict for the account just created.
func (g *Gateway) Register(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	err := g.call(ctx, callOpts{
		method: http.MethodPost, path: "/auth/register",
		body: map[string]string{"email": email, "password": password},
		out:  &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token. A 401 here means bad
// credentials, not an expired session.
func (g *Gateway) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	err := g.call(ctx, callOpts{
		method: http.MethodPost, path: "/auth/login",
		body: map[string]string{"email": email, "password": password},
		out:  &out, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the signed-in user.
func (g *Gateway) Me(ctx context.Context) (*model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	err := g.call(ctx, callOpts{
		method: http.MethodGet, path: "/auth/me",
		out: &out, authed: true, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// ListTasks returns the caller's tasks, optionally filtered by completion.
func (g *Gateway) ListTasks(ctx context.Context, completed *bool) ([]model.Task, error) {
	path := "/tasks"
	if completed != nil {
		path += "?completed=" + strconv.FormatBool(*completed)
	}

	var out struct {
		Tasks []model.Task `json:"tasks"`
	}
	err := g.call(ctx, callOpts{
		method: http.MethodGet, path: path,
		out: &out, authed: true, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	if out.Tasks == nil {
		out.Tasks = []model.Task{}
	}
	return out.Tasks, nil
}

// CreateTask adds a task. Not retried, so a lost response cannot produce a
// duplicate.
func (g *Gateway) CreateTask(ctx context.Context, description string) (*model.Task, error) {
	var out struct {
		Task model.Task `json:"task"`
	}
	err := g.call(ctx, callOpts{
		method: http.MethodPost, path: "/tasks",
		body: map[string]string{"description": description},
		out:  &out, authed: true,
	})
	if err != nil {
		return nil, err
	}
	return &out.Task, nil
}

// UpdateTask applies a partial update.
func (g *Gateway) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	var out struct {
		Task model.Task `json:"task"`
	}
	err := g.call(ctx, callOpts{
		method: http.MethodPut, path: "/tasks/" + url.PathEscape(id),
		body: patch, out: &out, authed: true, idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return &out.Task, nil
}

// DeleteTask removes a task.
func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	return g.call(ctx, callOpts{
		method: http.MethodDelete, path: "/tasks/" + url.PathEscape(id),
		authed: true, idempotent: true,
	})
}

type callOpts struct {
	method     string
	path       string
	body       any
	out        any
	authed     bool
	idempotent bool
}

func (g *Gateway) call(ctx context.Context, o callOpts) error {
	var payload []byte
	if o.body != nil {
		var err error
		if payload, err = json.Marshal(o.body); err != nil {
			return fmt.Errorf("client: encoding %s %s: %w", o.method, o.path, err)
		}
	}

	policy := NoRetry
	if o.idempotent {
		policy = g.retry
	}

	onRetry := func(attempt int, delay time.Duration, err error) {
		g.logger.Debug("retrying request",
			slog.String("method", o.method),
			slog.String("path", o.path),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	}

	return policy.do(ctx, g.sleep, onRetry, func(ctx context.Context) error {
		return g.once(ctx, o, payload)
	})
}

func (g *Gateway) once(ctx context.Context, o callOpts, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, o.method, g.baseURL+o.path, body)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := g.anon
	if o.authed {
		httpClient = g.authed
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return ErrNotAuthenticated
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		if o.authed && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", ErrSessionExpired, apiErr)
		}
		return apiErr
	}

	if o.out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(o.out); err != nil {
		return fmt.Errorf("client: decoding %s %s response: %w", o.method, o.path, err)
	}
	return nil
}
