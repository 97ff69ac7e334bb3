package handler

// RESPONSE HELPERS:
// Every handler writes through a responder so that success and error bodies
// have one shape:
//
//	{"error": "not_found", "message": "task not found with id abc123"}
//
// In development the body also carries "detail" with the wrapped cause, which
// is never sent in production.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/tasklist/internal/apperror"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`             // machine-readable type, e.g. "not_found"
	Message string `json:"message"`           // human-readable description
	Field   string `json:"field,omitempty"`   // offending input field, for validation errors
	Detail  string `json:"detail,omitempty"`  // development only
}

// Responder formats JSON success and error bodies. Exposing details is off
// unless the server runs in development.
type Responder struct {
	logger        *slog.Logger
	exposeDetails bool
}

// NewResponder creates a Responder. exposeDetails adds the underlying cause
// to error bodies.
func NewResponder(logger *slog.Logger, exposeDetails bool) *Responder {
	return &Responder{logger: logger, exposeDetails: exposeDetails}
}

// JSON sends data with the given status code.
//
// HEADER ORDER MATTERS: headers and status must be written before the body.
// Once Encode writes, later header changes are silently ignored.
func (rs *Responder) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			rs.logger.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// Error maps a domain error to its HTTP status and sends it.
//
// errors.Is walks the whole chain, so a service error such as
//
//	fmt.Errorf("service/task: updating task %s: %w", id, apperror.Forbidden(...))
//
// still maps to 403.
func (rs *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	status, errorType := classify(err)

	resp := ErrorResponse{Error: errorType}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
		if rs.exposeDetails && appErr.Cause != nil {
			resp.Detail = appErr.Cause.Error()
		}
	} else {
		// Raw errors may contain SQL, file paths or other internals.
		resp.Message = "An internal error occurred"
		if rs.exposeDetails {
			resp.Detail = err.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		rs.logger.Error("request failed",
			slog.String("requestID", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	rs.JSON(w, status, resp)
}

// BadRequest sends a 400 with a fixed message, for malformed input that
// never reached the service layer.
func (rs *Responder) BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	rs.Error(w, r, apperror.ValidationFailed("", message))
}

// decodeJSON reads a bounded JSON body into dst.
func (rs *Responder) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("", fmt.Sprintf("request body must be %d bytes or fewer", maxBodyBytes))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body is required")
		default:
			return apperror.ValidationFailed("", "invalid JSON body")
		}
	}
	return nil
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
