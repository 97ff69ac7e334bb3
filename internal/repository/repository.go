// Package repository declares the persistence interfaces used by the
// service layer. Implementations live in the sqlite and postgres
// subpackages; services only ever see these interfaces.
package repository

import (
	"context"

	"github.com/sakif/tasklist/internal/model"
)

// TaskFilter narrows ListByOwner. A nil Completed returns every task.
type TaskFilter struct {
	Completed *bool
}

// UserRepository is the credential store.
//
// Create returns an apperror.ErrConflict error when the email is taken.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// TaskRepository is the task store. Every method that reads or mutates a
// single task takes the owner id and applies it in the same statement as
// the read or write, so ownership can never be checked against a row that
// changes before the mutation lands.
//
// The *Owned methods return apperror.ErrNotFound when no task has the id and
// apperror.ErrForbidden when the task exists but belongs to someone else.
type TaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	ListByOwner(ctx context.Context, ownerID string, filter TaskFilter) ([]model.Task, error)
	GetOwned(ctx context.Context, id, ownerID string) (*model.Task, error)
	UpdateOwned(ctx context.Context, id, ownerID string, patch model.TaskPatch) (*model.Task, error)
	DeleteOwned(ctx context.Context, id, ownerID string) error
}

// Store is a handle on one backing database: the connection pool plus the
// repositories built on it.
type Store interface {
	Users() UserRepository
	Tasks() TaskRepository
	Ping(ctx context.Context) error
	Close() error
}
