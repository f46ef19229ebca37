package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/subsync-go/internal/fetch"
	"github.com/John-Robertt/subsync-go/internal/mapping"
	"github.com/John-Robertt/subsync-go/internal/model"
	"github.com/John-Robertt/subsync-go/internal/normalize"
	"github.com/John-Robertt/subsync-go/internal/render"
	"github.com/John-Robertt/subsync-go/internal/sub/ss"
	"github.com/John-Robertt/subsync-go/internal/syncdef"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ae *APIError
	if errors.As(err, &ae) {
		WriteError(w, ae.Status, ae.AppError)
		return
	}

	// Checked before ConfigError: a master fetch failure keeps the upstream status.
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		WriteError(w, fe.Status, fe.AppError)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, http.StatusGatewayTimeout, model.AppError{
			Code:    "SYNC_TIMEOUT",
			Message: "同步超时",
			Stage:   "sync",
		})
		return
	}

	// Sync definition, master config, mapping and content errors => 422.
	var ce *syncdef.ConfigError
	if errors.As(err, &ce) {
		WriteError(w, http.StatusUnprocessableEntity, ce.AppError)
		return
	}

	var de *mapping.DefinitionError
	if errors.As(err, &de) {
		WriteError(w, http.StatusUnprocessableEntity, de.AppError)
		return
	}

	var pe *normalize.ParseError
	if errors.As(err, &pe) {
		WriteError(w, http.StatusUnprocessableEntity, pe.AppError)
		return
	}

	var se *ss.ParseError
	if errors.As(err, &se) {
		WriteError(w, http.StatusUnprocessableEntity, se.AppError)
		return
	}

	var re *render.RenderError
	if errors.As(err, &re) {
		WriteError(w, http.StatusUnprocessableEntity, re.AppError)
		return
	}

	// Fallback: internal bug.
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	})
}
