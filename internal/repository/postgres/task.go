package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
)

var _ repository.TaskRepository = (*TaskDB)(nil)

const taskColumns = `id, user_id, description, completed, created_at, updated_at`

type TaskDB struct {
	pool *pgxpool.Pool
}

func (t *TaskDB) Create(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := t.pool.Exec(ctx,
		`INSERT INTO tasks (id, user_id, description, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		task.ID, task.UserID, task.Description, task.Completed, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return classify("creating task", err)
	}
	return nil
}

func (t *TaskDB) ListByOwner(ctx context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{ownerID}
	if filter.Completed != nil {
		query += ` AND completed = $2`
		args = append(args, *filter.Completed)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("listing tasks", err)
	}
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

func (t *TaskDB) GetOwned(ctx context.Context, id, ownerID string) (*model.Task, error) {
	task, err := scanTask(t.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID))
	if err != nil {
		if isNoRows(err) {
			return nil, t.explainMiss(ctx, id)
		}
		return nil, classify("getting task "+id, err)
	}
	return task, nil
}

// UpdateOwned is one UPDATE ... WHERE id AND user_id ... RETURNING; see the
// sqlite implementation for the reasoning.
func (t *TaskDB) UpdateOwned(ctx context.Context, id, ownerID string, patch model.TaskPatch) (*model.Task, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 5)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if patch.Description != nil {
		sets = append(sets, "description = "+next(*patch.Description))
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = "+next(*patch.Completed))
	}
	sets = append(sets, "updated_at = "+next(time.Now().UTC()))
	where := fmt.Sprintf(" WHERE id = %s AND user_id = %s", next(id), next(ownerID))

	task, err := scanTask(t.pool.QueryRow(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+where+` RETURNING `+taskColumns,
		args...,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, t.explainMiss(ctx, id)
		}
		return nil, classify("updating task "+id, err)
	}
	return task, nil
}

func (t *TaskDB) DeleteOwned(ctx context.Context, id, ownerID string) error {
	tag, err := t.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return classify("deleting task "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return t.explainMiss(ctx, id)
	}
	return nil
}

func (t *TaskDB) explainMiss(ctx context.Context, id string) error {
	var one int
	err := t.pool.QueryRow(ctx, `SELECT 1 FROM tasks WHERE id = $1`, id).Scan(&one)
	if isNoRows(err) {
		return apperror.NotFound("task", id)
	}
	if err != nil {
		return classify("probing task "+id, err)
	}
	return apperror.Forbidden("task belongs to another user")
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var task model.Task
	err := row.Scan(&task.ID, &task.UserID, &task.Description, &task.Completed, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &task, nil
}
