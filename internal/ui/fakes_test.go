package ui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/tasklist/internal/client"
	"github.com/sakif/tasklist/internal/model"
)

// journal records API calls and renders in the order they happen.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) reset() {
	j.mu.Lock()
	j.entries = nil
	j.mu.Unlock()
}

// fakeAPI is an in-memory task server for one user.
type fakeAPI struct {
	log *journal

	mu     sync.Mutex
	user   model.User
	tasks  []model.Task
	nextID int
	errs   map[string]error
}

func newFakeAPI(log *journal) *fakeAPI {
	return &fakeAPI{
		log:  log,
		user: model.User{ID: "u1", Email: "alice@example.com"},
		errs: make(map[string]error),
	}
}

func (f *fakeAPI) failWith(method string, err error) {
	f.mu.Lock()
	f.errs[method] = err
	f.mu.Unlock()
}

func (f *fakeAPI) errFor(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

func (f *fakeAPI) Register(_ context.Context, email, _ string) (*client.AuthResult, error) {
	f.log.add("api:register")
	if err := f.errFor("register"); err != nil {
		return nil, err
	}
	return &client.AuthResult{Token: "tok-" + email, User: model.User{ID: f.user.ID, Email: email}}, nil
}

func (f *fakeAPI) Login(_ context.Context, email, _ string) (*client.AuthResult, error) {
	f.log.add("api:login")
	if err := f.errFor("login"); err != nil {
		return nil, err
	}
	return &client.AuthResult{Token: "tok-" + email, User: model.User{ID: f.user.ID, Email: email}}, nil
}

func (f *fakeAPI) Me(_ context.Context) (*model.User, error) {
	f.log.add("api:me")
	if err := f.errFor("me"); err != nil {
		return nil, err
	}
	u := f.user
	return &u, nil
}

func (f *fakeAPI) ListTasks(_ context.Context, completed *bool) ([]model.Task, error) {
	f.log.add("api:list")
	if err := f.errFor("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Task{}
	for _, t := range f.tasks {
		if completed == nil || t.Completed == *completed {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateTask(_ context.Context, description string) (*model.Task, error) {
	f.log.add("api:create")
	if err := f.errFor("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := model.Task{ID: fmt.Sprintf("t%d", f.nextID), UserID: f.user.ID, Description: description, CreatedAt: time.Now()}
	f.tasks = append(f.tasks, t)
	return &t, nil
}

func (f *fakeAPI) UpdateTask(_ context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	f.log.add("api:update")
	if err := f.errFor("update"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		if patch.Description != nil {
			f.tasks[i].Description = *patch.Description
		}
		if patch.Completed != nil {
			f.tasks[i].Completed = *patch.Completed
		}
		t := f.tasks[i]
		return &t, nil
	}
	return nil, &client.APIError{Status: 404, Type: "not_found", Message: "task not found with id " + id}
}

func (f *fakeAPI) DeleteTask(_ context.Context, id string) error {
	f.log.add("api:delete")
	if err := f.errFor("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return &client.APIError{Status: 404, Type: "not_found", Message: "task not found with id " + id}
}

// recorder is a Renderer that remembers what it drew.
type recorder struct {
	log *journal

	mu        sync.Mutex
	logins    [][]Notice
	lastTasks []model.Task
	toasts    []Notice
}

func (r *recorder) ShowLogin(notices []Notice) {
	r.log.add("render:login")
	r.mu.Lock()
	r.logins = append(r.logins, notices)
	r.mu.Unlock()
}

func (r *recorder) ShowTasks(_ model.User, tasks []model.Task) {
	r.log.add("render:tasks")
	r.mu.Lock()
	r.lastTasks = tasks
	r.mu.Unlock()
}

func (r *recorder) ShowNotice(n Notice) {
	r.mu.Lock()
	r.toasts = append(r.toasts, n)
	r.mu.Unlock()
}

func (r *recorder) lastLogin() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.logins) == 0 {
		return nil
	}
	return r.logins[len(r.logins)-1]
}

type harness struct {
	app     *App
	api     *fakeAPI
	render  *recorder
	session *client.Session
	log     *journal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &journal{}
	h := &harness{
		api:     newFakeAPI(log),
		render:  &recorder{log: log},
		session: client.NewSession(client.NewMemoryStorage()),
		log:     log,
	}
	h.app = NewApp(h.api, h.session, h.render, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.app.Login(context.Background(), "alice@example.com", "password123"))
}

var handledEvents = []EventType{
	EventTaskAdd, EventTaskToggle, EventTaskEdit, EventTaskDelete, EventTaskRefresh, EventAuthLogout,
}
