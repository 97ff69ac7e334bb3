package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
)

// compile-time check that *TaskDB implements repository.TaskRepository
var _ repository.TaskRepository = (*TaskDB)(nil)

const taskColumns = `id, user_id, description, completed, created_at, updated_at`

// TaskDB is the task store.
type TaskDB struct {
	conn *sql.DB
}

// Create inserts a new task. ID and timestamps are generated here; the
// caller's struct is updated in place.
func (t *TaskDB) Create(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := t.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, description, completed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.UserID,
		task.Description,
		task.Completed,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return classify("creating task", err)
	}

	return nil
}

// ListByOwner returns the owner's tasks, newest first. xid ids sort by
// creation time, so "id DESC" is a stable tie-breaker for equal timestamps.
func (t *TaskDB) ListByOwner(ctx context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{ownerID}
	if filter.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, *filter.Completed)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := t.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("listing tasks", err)
	}
	// CRITICAL: always close rows when done!
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, classify("scanning task row", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating tasks", err)
	}

	return tasks, nil
}

// GetOwned fetches one task if ownerID owns it.
func (t *TaskDB) GetOwned(ctx context.Context, id, ownerID string) (*model.Task, error) {
	task, err := scanTask(t.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`,
		id, ownerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, t.explainMiss(ctx, id)
		}
		return nil, classify("getting task "+id, err)
	}
	return task, nil
}

// UpdateOwned applies patch to the task if, and only if, ownerID owns it.
//
// The ownership check is the WHERE clause of the UPDATE itself, and
// RETURNING hands back the row as written. There is no window between
// "check owner" and "write" for a concurrent request to slip into.
func (t *TaskDB) UpdateOwned(ctx context.Context, id, ownerID string, patch model.TaskPatch) (*model.Task, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *patch.Completed)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id, ownerID)

	task, err := scanTask(t.conn.QueryRowContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+`
		 WHERE id = ? AND user_id = ?
		 RETURNING `+taskColumns,
		args...,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, t.explainMiss(ctx, id)
		}
		return nil, classify("updating task "+id, err)
	}
	return task, nil
}

// DeleteOwned removes the task if ownerID owns it. Same single-statement
// ownership predicate as UpdateOwned.
func (t *TaskDB) DeleteOwned(ctx context.Context, id, ownerID string) error {
	result, err := t.conn.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND user_id = ?`,
		id, ownerID,
	)
	if err != nil {
		return classify("deleting task "+id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return classify("checking rows affected", err)
	}
	if rowsAffected == 0 {
		return t.explainMiss(ctx, id)
	}

	return nil
}

// explainMiss runs after an owner-scoped statement matched nothing and
// decides which error the caller gets: the id is unknown (404) or it belongs
// to another user (403). It never mutates anything, so it cannot reopen the
// check-then-act race the owner-scoped statement closed.
func (t *TaskDB) explainMiss(ctx context.Context, id string) error {
	var one int
	err := t.conn.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("task", id)
	}
	if err != nil {
		return classify("probing task "+id, err)
	}
	return apperror.Forbidden("task belongs to another user")
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var task model.Task
	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Description,
		&task.Completed,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
