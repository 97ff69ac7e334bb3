package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sakif/tasklist/internal/client"
	"github.com/sakif/tasklist/internal/model"
)

var (
	ErrEmptyDescription = errors.New("ui: task description is required")
	ErrMissingTaskID    = errors.New("ui: task id is required")
	ErrUnknownTask      = errors.New("ui: task is not in the current list")
)

// TaskAPI is the part of client.Gateway the controller uses.
type TaskAPI interface {
	ListTasks(ctx context.Context, completed *bool) ([]model.Task, error)
	CreateTask(ctx context.Context, description string) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// ControllerDeps are the collaborators of a TaskController.
type ControllerDeps struct {
	Emitter  *Emitter
	API      TaskAPI
	Session  *client.Session
	Notifier *Notifier
	Renderer Renderer
	Logger   *slog.Logger

	// OnLogout handles auth:logout.
	OnLogout func(ctx context.Context) error
	// OnSessionExpired is called when the server rejects the stored token.
	OnSessionExpired func(ctx context.Context)
}

// TaskController handles task events for one signed-in user. It is either
// unbound (no listeners) or bound (exactly one listener per handled event
// type). A controller is used for one session only; the next login builds a
// new one.
type TaskController struct {
	deps ControllerDeps
	user model.User

	bindMu   sync.Mutex
	bound    bool
	bindings Bindings

	// actionMu runs one action at a time, start to finish.
	actionMu sync.Mutex
	filter   *bool
}

// NewTaskController creates an unbound controller for user.
func NewTaskController(user model.User, deps ControllerDeps) *TaskController {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &TaskController{deps: deps, user: user}
}

// User is the identity this controller was built for.
func (c *TaskController) User() model.User { return c.user }

// Bound reports whether the controller's listeners are attached.
func (c *TaskController) Bound() bool {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	return c.bound
}

// Bind attaches one listener per handled event type. Binding a bound
// controller does nothing.
func (c *TaskController) Bind() {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	if c.bound {
		return
	}

	handlers := []struct {
		t  EventType
		fn HandlerFunc
	}{
		{EventTaskAdd, c.sequenced(c.handleAdd)},
		{EventTaskToggle, c.sequenced(c.handleToggle)},
		{EventTaskEdit, c.sequenced(c.handleEdit)},
		{EventTaskDelete, c.sequenced(c.handleDelete)},
		{EventTaskRefresh, c.sequenced(c.handleRefresh)},
		{EventAuthLogout, c.handleLogout},
	}
	for _, h := range handlers {
		c.bindings.Add(c.deps.Emitter.On(h.t, h.fn))
	}
	c.bound = true
	c.deps.Logger.Debug("controller bound", slog.String("userID", c.user.ID), slog.Int("listeners", c.bindings.Len()))
}

// Teardown releases the listeners Bind attached, and nothing else.
func (c *TaskController) Teardown() {
	c.bindMu.Lock()
	defer c.bindMu.Unlock()
	if !c.bound {
		return
	}
	c.bindings.ReleaseAll()
	c.bound = false
	c.deps.Logger.Debug("controller torn down", slog.String("userID", c.user.ID))
}

func (c *TaskController) sequenced(fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, ev Event) error {
		c.actionMu.Lock()
		defer c.actionMu.Unlock()
		return fn(ctx, ev)
	}
}

// =========================================================================
// ACTIONS
// =========================================================================

func (c *TaskController) handleAdd(ctx context.Context, ev Event) error {
	desc := strings.TrimSpace(ev.Description)
	if desc == "" {
		return c.invalid(ErrEmptyDescription, "Task description is required")
	}

	if _, err := c.deps.API.CreateTask(ctx, desc); err != nil {
		return c.fail(ctx, "add task", err)
	}
	c.deps.Notifier.Resolve(FormTask)
	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.announce("Task added")
	return nil
}

func (c *TaskController) handleToggle(ctx context.Context, ev Event) error {
	if ev.TaskID == "" {
		return c.invalid(ErrMissingTaskID, "Task id is required")
	}

	target := ev.Completed
	if target == nil {
		current, ok := c.lookup(ev.TaskID)
		if !ok {
			return c.invalid(ErrUnknownTask, fmt.Sprintf("Task %s is not in the current list", ev.TaskID))
		}
		flipped := !current.Completed
		target = &flipped
	}

	if _, err := c.deps.API.UpdateTask(ctx, ev.TaskID, model.TaskPatch{Completed: target}); err != nil {
		return c.fail(ctx, "update task", err)
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	if *target {
		c.announce("Task marked complete")
	} else {
		c.announce("Task marked incomplete")
	}
	return nil
}

func (c *TaskController) handleEdit(ctx context.Context, ev Event) error {
	if ev.TaskID == "" {
		return c.invalid(ErrMissingTaskID, "Task id is required")
	}
	desc := strings.TrimSpace(ev.Description)
	if desc == "" {
		return c.invalid(ErrEmptyDescription, "Task description is required")
	}

	if _, err := c.deps.API.UpdateTask(ctx, ev.TaskID, model.TaskPatch{Description: &desc}); err != nil {
		return c.fail(ctx, "update task", err)
	}
	c.deps.Notifier.Resolve(FormTask)
	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.announce("Task updated")
	return nil
}

func (c *TaskController) handleDelete(ctx context.Context, ev Event) error {
	if ev.TaskID == "" {
		return c.invalid(ErrMissingTaskID, "Task id is required")
	}

	if err := c.deps.API.DeleteTask(ctx, ev.TaskID); err != nil {
		return c.fail(ctx, "delete task", err)
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	c.announce("Task deleted")
	return nil
}

func (c *TaskController) handleRefresh(ctx context.Context, ev Event) error {
	c.filter = ev.Completed
	return c.refresh(ctx)
}

func (c *TaskController) handleLogout(ctx context.Context, _ Event) error {
	if c.deps.OnLogout == nil {
		return nil
	}
	return c.deps.OnLogout(ctx)
}

// refresh reloads the list with the current filter, stores the snapshot and
// renders it. Callers hold actionMu, so renders never interleave.
func (c *TaskController) refresh(ctx context.Context) error {
	tasks, err := c.deps.API.ListTasks(ctx, c.filter)
	if err != nil {
		return c.fail(ctx, "load tasks", err)
	}
	if err := c.deps.Session.SetTasks(tasks); err != nil {
		c.deps.Logger.Warn("failed to store task snapshot", slog.String("error", err.Error()))
	}
	c.deps.Renderer.ShowTasks(c.user, tasks)
	return nil
}

func (c *TaskController) lookup(id string) (model.Task, bool) {
	for _, t := range c.deps.Session.Tasks() {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// =========================================================================
// FEEDBACK
// =========================================================================

func (c *TaskController) announce(msg string) {
	c.deps.Notifier.Notify(Transient, Notice{Level: LevelSuccess, Message: msg})
}

// invalid reports input the user has to correct on the task form.
func (c *TaskController) invalid(err error, msg string) error {
	c.deps.Notifier.Notify(Persistent, Notice{Level: LevelError, Message: msg, Form: FormTask})
	return &reportedError{err: err}
}

// fail routes an API error: an expired session forces a logout, a rejected
// input stays on the task form, anything else is a transient notice.
func (c *TaskController) fail(ctx context.Context, action string, err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrSessionExpired):
		if c.deps.OnSessionExpired != nil {
			c.deps.OnSessionExpired(ctx)
		}
	case errors.As(err, &apiErr) && apiErr.Status == 400:
		c.deps.Notifier.Notify(Persistent, Notice{Level: LevelError, Message: apiErr.Message, Form: FormTask})
	default:
		c.deps.Notifier.Notify(Transient, Notice{
			Level:   LevelError,
			Message: fmt.Sprintf("Could not %s: %s", action, userMessage(err)),
		})
	}
	return &reportedError{err: err}
}

func userMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

// reportedError marks an error the user has already seen as a notice.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already shown to the user as a notice,
// so callers need not print it again.
func Reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}
