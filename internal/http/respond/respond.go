// Package respond writes JSON bodies and translates domain errors to HTTP.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByKind = map[treasury.ErrorKind]int{
	treasury.KindValidation:        http.StatusBadRequest,
	treasury.KindNotFound:          http.StatusNotFound,
	treasury.KindConflict:          http.StatusConflict,
	treasury.KindAuthorization:     http.StatusForbidden,
	treasury.KindInvalidState:      http.StatusConflict,
	treasury.KindInsufficientFunds: http.StatusUnprocessableEntity,
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Fail writes an error body with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func BadRequest(w http.ResponseWriter, message string) {
	Fail(w, http.StatusBadRequest, string(treasury.KindValidation), message)
}

// Error maps err to its status by kind. Errors without a kind are logged and
// reported as a bare internal error.
func Error(w http.ResponseWriter, err error) {
	var e *treasury.Error
	if !errors.As(err, &e) || e.Kind == treasury.KindInternal {
		slog.Error("request failed", "error", err)
		Fail(w, http.StatusInternalServerError, string(treasury.KindInternal), "internal error")

		return
	}

	status, ok := statusByKind[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := e.Message
	if msg == "" {
		msg = e.Error()
	}

	Fail(w, status, string(e.Kind), msg)
}
