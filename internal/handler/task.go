package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/model"
	"github.com/sakif/tasklist/internal/repository"
)

// TaskService is the subset of *service.TaskService the handler needs.
type TaskService interface {
	Create(ctx context.Context, ownerID, description string) (*model.Task, error)
	List(ctx context.Context, ownerID string, filter repository.TaskFilter) ([]model.Task, error)
	Get(ctx context.Context, id, ownerID string) (*model.Task, error)
	Update(ctx context.Context, id, ownerID string, patch model.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// TaskHandler manages CRUD operations for the caller's tasks. Every route is
// mounted behind RequireAuth; the owner always comes from the token, never
// from the request body.
type TaskHandler struct {
	tasks  TaskService
	resp   *Responder
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks TaskService, resp *Responder, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, resp: resp, logger: logger}
}

type createTaskRequest struct {
	Description string `json:"description"`
}

type updateTaskRequest struct {
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// HandleList returns the caller's tasks, newest first.
//
// HTTP: GET /tasks[?completed=true|false]
// RESPONSE: 200 {"tasks": [...]}; an empty list is [] rather than null.
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var filter repository.TaskFilter
	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			h.resp.BadRequest(w, r, "completed must be true or false")
			return
		}
		filter.Completed = &completed
	}

	tasks, err := h.tasks.List(r.Context(), ownerID, filter)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// HandleCreate adds a task for the caller.
//
// HTTP: POST /tasks
// REQUEST BODY: {"description": "buy milk"}
// RESPONSE: 201 {"task": {...}} | 400
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := h.resp.decodeJSON(w, r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), ownerID, req.Description)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusCreated, map[string]any{"task": task})
}

// HandleGet returns one task.
//
// HTTP: GET /tasks/{id}
// RESPONSE: 200 {"task": {...}} | 403 | 404
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	task, err := h.tasks.Get(r.Context(), r.PathValue("id"), ownerID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, map[string]any{"task": task})
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /tasks/{id}
// REQUEST BODY: {"description"?: "...", "completed"?: true}
// RESPONSE: 200 {"task": {...}} | 400 | 403 | 404
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if err := h.resp.decodeJSON(w, r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	patch := model.TaskPatch{Description: req.Description, Completed: req.Completed}
	task, err := h.tasks.Update(r.Context(), r.PathValue("id"), ownerID, patch)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, map[string]any{"task": task})
}

// HandleDelete removes a task.
//
// HTTP: DELETE /tasks/{id}
// RESPONSE: 200 {"success": true} | 403 | 404
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	if err := h.tasks.Delete(r.Context(), r.PathValue("id"), ownerID); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	h.resp.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *TaskHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.resp.JSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "no token provided",
		})
		return "", false
	}
	return userID, true
}
