package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/tasklist/internal/client"
	"github.com/sakif/tasklist/internal/model"
)

var (
	ErrNotSignedIn        = errors.New("ui: not signed in")
	ErrMissingCredentials = errors.New("ui: email and password are required")
)

// API is the part of client.Gateway the app uses.
type API interface {
	TaskAPI
	Register(ctx context.Context, email, password string) (*client.AuthResult, error)
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
	Me(ctx context.Context) (*model.User, error)
}

// App owns the session lifecycle. At most one TaskController exists at a
// time: login and register build a fresh one and bind it once, logout tears
// it down before dropping it.
type App struct {
	api      API
	session  *client.Session
	emitter  *Emitter
	notifier *Notifier
	render   Renderer
	logger   *slog.Logger

	mu         sync.Mutex
	controller *TaskController
}

// AppOption configures an App.
type AppOption func(*appOptions)

type appOptions struct {
	logger *slog.Logger
	ttl    time.Duration
}

// WithLogger sets the app's logger.
func WithLogger(l *slog.Logger) AppOption {
	return func(o *appOptions) { o.logger = l }
}

// WithTransientTTL overrides DefaultTransientTTL.
func WithTransientTTL(d time.Duration) AppOption {
	return func(o *appOptions) { o.ttl = d }
}

// NewApp creates an App. Transient notices and task form notices are shown
// through render as soon as they are posted; login and register notices are
// drawn with the login screen.
func NewApp(api API, session *client.Session, render Renderer, opts ...AppOption) *App {
	o := appOptions{logger: slog.Default(), ttl: DefaultTransientTTL}
	for _, opt := range opts {
		opt(&o)
	}
	show := func(ch Channel, n Notice) {
		if ch == Transient || n.Form == FormTask {
			render.ShowNotice(n)
		}
	}
	return &App{
		api:      api,
		session:  session,
		emitter:  NewEmitter(),
		notifier: NewNotifier(o.ttl, show),
		render:   render,
		logger:   o.logger,
	}
}

func (a *App) Emitter() *Emitter   { return a.emitter }
func (a *App) Notifier() *Notifier { return a.notifier }

// Controller returns the live controller, or nil when signed out.
func (a *App) Controller() *TaskController {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controller
}

// Resume binds a controller for a stored session without calling the
// server. It reports whether a session was found.
func (a *App) Resume() bool {
	user, ok := a.session.User()
	if !a.session.IsAuthenticated() || !ok {
		return false
	}
	a.startSession(user)
	return true
}

// Start resumes a stored session and renders its tasks, or shows the login
// screen.
func (a *App) Start(ctx context.Context) error {
	if !a.Resume() {
		a.showLogin()
		return nil
	}
	return a.Emit(ctx, Event{Type: EventTaskRefresh})
}

// Login signs in and renders the task list.
func (a *App) Login(ctx context.Context, email, password string) error {
	return a.authenticate(ctx, FormLogin, email, password, a.api.Login, "Welcome back, %s")
}

// Register creates an account, signs in and renders the (empty) task list.
func (a *App) Register(ctx context.Context, email, password string) error {
	return a.authenticate(ctx, FormRegister, email, password, a.api.Register, "Account created for %s")
}

type authCall func(ctx context.Context, email, password string) (*client.AuthResult, error)

func (a *App) authenticate(ctx context.Context, form Form, email, password string, call authCall, greeting string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		a.notifier.Notify(Persistent, Notice{Level: LevelError, Message: "Email and password are required", Form: form})
		a.showLogin()
		return &reportedError{err: ErrMissingCredentials}
	}

	res, err := call(ctx, email, password)
	if err != nil {
		a.notifier.Notify(Persistent, Notice{Level: LevelError, Message: userMessage(err), Form: form})
		a.showLogin()
		return &reportedError{err: err}
	}

	if err := a.session.Begin(res.Token, res.User); err != nil {
		return fmt.Errorf("ui: storing session: %w", err)
	}
	a.notifier.Resolve(FormLogin)
	a.notifier.Resolve(FormRegister)

	a.startSession(res.User)
	a.notifier.Notify(Transient, Notice{Level: LevelSuccess, Message: fmt.Sprintf(greeting, res.User.Email)})
	return a.Emit(ctx, Event{Type: EventTaskRefresh})
}

// Logout ends the session at the user's request.
func (a *App) Logout(ctx context.Context) error {
	err := a.endSession()
	a.notifier.Notify(Transient, Notice{Level: LevelInfo, Message: "Logged out"})
	a.showLogin()
	return err
}

// ForceLogout ends the session after the server rejected the token. The
// expiry notice goes to both channels.
func (a *App) ForceLogout(ctx context.Context) {
	if err := a.endSession(); err != nil {
		a.logger.Warn("failed to clear session", slog.String("error", err.Error()))
	}
	a.notifier.SessionExpired()
	a.showLogin()
}

// Whoami asks the server who the stored token belongs to.
func (a *App) Whoami(ctx context.Context) (model.User, error) {
	if !a.session.IsAuthenticated() {
		a.showLogin()
		return model.User{}, ErrNotSignedIn
	}

	u, err := a.api.Me(ctx)
	if errors.Is(err, client.ErrSessionExpired) {
		a.ForceLogout(ctx)
		return model.User{}, &reportedError{err: err}
	}
	if err != nil {
		a.notifier.Notify(Transient, Notice{Level: LevelError, Message: userMessage(err)})
		return model.User{}, &reportedError{err: err}
	}
	return *u, nil
}

// Emit dispatches ev to the bound controller. With nothing bound for
// ev.Type the user is signed out.
func (a *App) Emit(ctx context.Context, ev Event) error {
	if a.emitter.ListenerCount(ev.Type) == 0 {
		a.showLogin()
		return ErrNotSignedIn
	}
	return a.emitter.Emit(ctx, ev)
}

func (a *App) startSession(user model.User) {
	c := NewTaskController(user, ControllerDeps{
		Emitter:          a.emitter,
		API:              a.api,
		Session:          a.session,
		Notifier:         a.notifier,
		Renderer:         a.render,
		Logger:           a.logger,
		OnLogout:         a.Logout,
		OnSessionExpired: a.ForceLogout,
	})

	a.mu.Lock()
	prev := a.controller
	a.controller = c
	a.mu.Unlock()

	if prev != nil {
		prev.Teardown()
	}
	c.Bind()
}

// endSession tears down the controller, then clears the stored session and
// the task snapshot.
func (a *App) endSession() error {
	a.mu.Lock()
	c := a.controller
	a.controller = nil
	a.mu.Unlock()

	if c != nil {
		c.Teardown()
	}
	a.notifier.Resolve(FormTask)
	return errors.Join(a.session.Clear(), a.session.ClearTasks())
}

func (a *App) showLogin() {
	var notices []Notice
	for _, f := range []Form{FormLogin, FormRegister} {
		if n, ok := a.notifier.PersistentFor(f); ok {
			notices = append(notices, n)
		}
	}
	a.render.ShowLogin(notices)
}
