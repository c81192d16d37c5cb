// Package render writes the JSON bodies every API response uses: a payload,
// a {"message": ...} object, or an {"error": ...} object.
package render

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/json; charset=utf-8"

type MessageBody struct {
	Message string `json:"message"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes payload with status. Encoding failures after the header has
// been sent can only be logged.
func JSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("encode response")
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// Message writes {"message": msg}. Client errors reported this way are
// logged at warn with cause, when given.
func Message(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	logFailure(r, status, msg, cause)
	JSON(w, r, status, MessageBody{Message: msg})
}

// Error writes {"error": err.Error()}. 5xx are logged at error, 4xx at warn.
func Error(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	logFailure(r, status, msg, err)
	JSON(w, r, status, ErrorBody{Error: msg})
}

func logFailure(r *http.Request, status int, msg string, err error) {
	if status < 400 {
		return
	}
	logger := zerolog.Ctx(r.Context())

	var event *zerolog.Event
	if status >= 500 {
		event = logger.Error()
	} else {
		event = logger.Warn()
	}
	if err != nil {
		event = event.Err(err)
	}
	event.
		Int("status", status).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg(msg)
}
