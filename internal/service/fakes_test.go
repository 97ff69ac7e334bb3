package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// In-memory implementations of the repository interfaces. They reproduce
// the error contract of the SQL stores (conflict on duplicate email,
// not-found vs forbidden on ownership misses) so the services see the same
// behaviour they would against SQLite.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
	nextID  int
	// set to a non-nil error to simulate a database failure
	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return apperror.Conflict("user", user.Email)
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.byID[user.ID] = &stored
	f.byEmail[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	copied := *u
	return &copied, nil
}

type fakeTaskRepo struct {
	mu     sync.Mutex
	tasks  map[string]*model.Task
	nextID int
	clock  time.Time
	err    error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		tasks: make(map[string]*model.Task),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var _ repository.TaskRepository = (*fakeTaskRepo)(nil)

func (f *fakeTaskRepo) Create(_ context.Context, task *model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	task.ID = fmt.Sprintf("task-%03d", f.nextID)
	task.CreatedAt = f.clock
	task.UpdatedAt = f.clock
	stored := *task
	f.tasks[task.ID] = &stored
	return nil
}

func (f *fakeTaskRepo) ListByOwner(_ context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Task, 0)
	for _, t := range f.tasks {
		if t.UserID != ownerID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeTaskRepo) GetOwned(_ context.Context, id, ownerID string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.owned(id, ownerID)
	if err != nil {
		return nil, err
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTaskRepo) UpdateOwned(_ context.Context, id, ownerID string, patch model.TaskPatch) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.owned(id, ownerID)
	if err != nil {
		return nil, err
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	f.clock = f.clock.Add(time.Second)
	t.UpdatedAt = f.clock
	copied := *t
	return &copied, nil
}

func (f *fakeTaskRepo) DeleteOwned(_ context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.owned(id, ownerID); err != nil {
		return err
	}
	delete(f.tasks, id)
	return nil
}

// owned must be called with mu held.
func (f *fakeTaskRepo) owned(id, ownerID string) (*model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, apperror.NotFound("task", id)
	}
	if t.UserID != ownerID {
		return nil, apperror.Forbidden("task belongs to another user")
	}
	return t, nil
}
