package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-acbridge/internal/climate"
	"github.com/nerrad567/gray-logic-acbridge/internal/command"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Codes for failures outside the command pipeline. Pipeline failures use
// climate.KindName.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeTransport    = "transport_error"
)

// writeJSON encodes v before touching the response, so an encoding
// failure still produces a clean 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var body []byte
	if v != nil {
		var err error
		if body, err = json.Marshal(v); err != nil {
			status = http.StatusInternalServerError
			body = []byte(`{"status":500,"code":"internal_error","message":"response encoding failed"}`)
		}
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, msg)
}

func writeNotFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, msg)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, msg)
}

func writeForbidden(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, msg)
}

func writeInternalError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, msg)
}

// writeCommandError maps a dispatcher error onto an HTTP status.
//
//	DeviceNotFound            404
//	InvalidCommand            400
//	ModeNotSupported          422
//	NoMatchingCode            422
//	transport failure         502
//	anything else             500
func writeCommandError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := climate.KindName(err)
	message := climate.Message(err)

	switch {
	case errors.Is(err, climate.ErrDeviceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, climate.ErrInvalidCommand):
		status = http.StatusBadRequest
	case errors.Is(err, climate.ErrModeNotSupported), errors.Is(err, climate.ErrNoMatchingCode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, command.ErrTransport):
		status = http.StatusBadGateway
		code = ErrCodeTransport
	default:
		code = ErrCodeInternal
		message = "command failed"
	}
	writeError(w, status, code, message)
}
