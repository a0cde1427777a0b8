package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/leave-engine/generic"
	"go.uber.org/zap"
)

const internalMessage = "An unexpected error occurred"

// statusFor maps an error kind to its HTTP status.
func statusFor(kind generic.Kind) int {
	switch kind {
	case generic.KindNotFound:
		return http.StatusNotFound
	case generic.KindInvalidInput, generic.KindPastDate:
		return http.StatusBadRequest
	case generic.KindConflict, generic.KindAlreadyDecided:
		return http.StatusConflict
	case generic.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case generic.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError renders err by kind. Internal errors are logged with the
// request id and answered with a generic message.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := generic.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, ErrorResponse{Error: internalMessage, Code: string(generic.KindInternal)})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: string(kind)}
	var overlap *generic.OverlapError
	if errors.As(err, &overlap) {
		resp.Details = map[string]string{"existing_request_id": overlap.ExistingID}
	}
	writeJSON(w, status, resp)
}

// writeValidationError reports each failed field of a validator error.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, string(generic.KindInvalidInput), err.Error(), nil)
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fmt.Sprintf("failed on '%s'", fe.Tag())
	}
	writeError(w, http.StatusBadRequest, string(generic.KindInvalidInput), "validation failed", fields)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
