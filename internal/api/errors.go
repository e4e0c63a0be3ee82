package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/academia-core/internal/auth"
	"github.com/nerrad567/academia-core/internal/course"
)

// Error is the body of every non-2xx response.
type Error struct {
	StatusCode int      `json:"statusCode"`
	Reason     string   `json:"error"`
	Message    string   `json:"message"`
	Messages   []string `json:"messages,omitempty"`
}

// response is the body of every 2xx response that carries data.
type response struct {
	Message    string             `json:"message"`
	Data       any                `json:"data,omitempty"`
	Pagination *course.Pagination `json:"pagination,omitempty"`
}

// Client-facing messages that are not produced by a lower layer.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidJSON        = "Invalid JSON body"
	msgNumericID          = "Validation failed (numeric string is expected)"
	msgInternal           = "Internal server error"
	msgSuccessful         = "Successful"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, response{Message: message, Data: data})
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, message string, messages ...string) {
	writeJSON(w, status, Error{
		StatusCode: status,
		Reason:     http.StatusText(status),
		Message:    message,
		Messages:   messages,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

// writeInternalError writes a 500 error response. Details stay in the log.
func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, msgInternal)
}

// writeServiceError maps an error from the auth or course layers to a
// response. Only messages those layers mark as client safe are exposed.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rej *auth.Rejection
	var fe *auth.ForbiddenError

	switch {
	case errors.As(err, &rej):
		writeUnauthorized(w, rej.Message)
	case errors.As(err, &fe):
		writeError(w, http.StatusForbidden, fe.Error())
	case errors.Is(err, auth.ErrNoIdentity):
		writeError(w, http.StatusForbidden, "Forbidden resource")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w, auth.MsgInvalidToken)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeNotFound(w, msgInvalidCredentials)
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, publicMessage(err, auth.ErrConflict))
	case errors.Is(err, auth.ErrNotFound):
		writeNotFound(w, publicMessage(err, auth.ErrNotFound))
	case errors.Is(err, auth.ErrInvalidInput):
		msg := publicMessage(err, auth.ErrInvalidInput)
		writeError(w, http.StatusBadRequest, msg, msg)
	default:
		spanError(r.Context(), err)
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w)
	}
}

// publicMessage returns the client-safe message carried by the first
// auth.ClientError in err's chain. Errors without one fall back to the
// class name so wrapper text never reaches the client.
func publicMessage(err, class error) string {
	msg := class.Error()
	var ce *auth.ClientError
	if errors.As(err, &ce) && ce.Message != "" {
		msg = ce.Message
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
