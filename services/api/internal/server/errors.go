package server

import (
	"errors"
	"net/http"

	"anonmsg/internal/util"
	"anonmsg/services/api/internal/app"
)

const (
	codeInvalidInput     = "invalid_input"
	codeConflict         = "conflict"
	codeNotFound         = "not_found"
	codeUnauthorized     = "unauthorized"
	codeInvalidJSON      = "invalid_json"
	codeMethodNotAllowed = "method_not_allowed"
	codeInternal         = "internal"
)

type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromRequest(r),
	})
}

// writeAppError maps app sentinels to HTTP responses. Anything unmapped is
// logged and reported as a bare internal error.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		writeError(w, r, http.StatusUnprocessableEntity, codeInvalidInput, err.Error())
	case errors.Is(err, app.ErrMessageTextRequired):
		writeError(w, r, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, app.ErrUsernameTaken):
		writeError(w, r, http.StatusUnprocessableEntity, codeConflict, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, err.Error())
	case errors.Is(err, app.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrRecipientNotFound),
		errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrConversationNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
