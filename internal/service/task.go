// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete *sqlite.DB, so tests
// pass in-memory fakes and main.go picks SQLite or PostgreSQL.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/tasklist/internal/apperror"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
)

// MaxDescriptionLength is counted in characters, not bytes.
const MaxDescriptionLength = 500

// TaskService handles business logic for to-do items. Every method takes the
// caller's user ID; ownership is enforced by the repository inside the same
// statement that reads or mutates the row.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

// NewTaskService creates a new TaskService.
func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: logger,
	}
}

// Create validates and saves a new task owned by ownerID. New tasks always
// start incomplete.
func (s *TaskService) Create(ctx context.Context, ownerID, description string) (*model.Task, error) {
	description, err := cleanDescription(description)
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		UserID:      ownerID,
		Description: description,
		Completed:   false,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("service/task: creating task: %w", err)
	}

	s.logger.Info("task created",
		slog.String("taskID", task.ID),
		slog.String("userID", ownerID),
	)
	return task, nil
}

// List returns the owner's tasks, newest first. The result is never nil.
func (s *TaskService) List(ctx context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error) {
	tasks, err := s.repo.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing tasks: %w", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Get returns one task if ownerID owns it.
func (s *TaskService) Get(ctx context.Context, id, ownerID string) (*model.Task, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "task id is required")
	}

	task, err := s.repo.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("service/task: getting task %s: %w", id, err)
	}
	return task, nil
}

// Update applies a partial update. At least one field must be present, and
// a description, if given, follows the same rules as in Create.
//
// A task owned by someone else is reported as forbidden and left untouched.
func (s *TaskService) Update(ctx context.Context, id, ownerID string, patch model.TaskPatch) (*model.Task, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "task id is required")
	}
	if patch.Empty() {
		return nil, apperror.ValidationFailed("", "at least one of description or completed is required")
	}
	if patch.Description != nil {
		cleaned, err := cleanDescription(*patch.Description)
		if err != nil {
			return nil, err
		}
		patch.Description = &cleaned
	}

	task, err := s.repo.UpdateOwned(ctx, id, ownerID, patch)
	if err != nil {
		s.logRejected("update", id, ownerID, err)
		return nil, fmt.Errorf("service/task: updating task %s: %w", id, err)
	}

	s.logger.Info("task updated",
		slog.String("taskID", id),
		slog.String("userID", ownerID),
	)
	return task, nil
}

// Delete removes a task the caller owns.
func (s *TaskService) Delete(ctx context.Context, id, ownerID string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "task id is required")
	}

	if err := s.repo.DeleteOwned(ctx, id, ownerID); err != nil {
		s.logRejected("delete", id, ownerID, err)
		return fmt.Errorf("service/task: deleting task %s: %w", id, err)
	}

	s.logger.Info("task deleted",
		slog.String("taskID", id),
		slog.String("userID", ownerID),
	)
	return nil
}

// logRejected records cross-owner attempts; they are worth seeing in logs
// even though the caller just gets a 403.
func (s *TaskService) logRejected(op, id, ownerID string, err error) {
	if errors.Is(err, apperror.ErrForbidden) {
		s.logger.Warn("cross-owner task access rejected",
			slog.String("op", op),
			slog.String("taskID", id),
			slog.String("userID", ownerID),
		)
	}
}

func cleanDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", apperror.ValidationFailed("description", "description is required")
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or fewer", MaxDescriptionLength))
	}
	return description, nil
}
