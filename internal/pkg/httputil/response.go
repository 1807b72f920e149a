// Package httputil provides HTTP response helpers shared by the API handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// dataEnvelope wraps every successful API payload.
type dataEnvelope struct {
	Data any `json:"data"`
}

// errorEnvelope wraps every API error payload.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

// JSON writes a raw JSON response without the data envelope. Reserved for
// non-API surfaces such as the version endpoint; API handlers use Success.
func JSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

// Text writes a plain text response.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes payload inside the {"data": ...} envelope.
func Success(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, dataEnvelope{Data: payload})
}

// Error writes message inside the {"error": {"message": ...}} envelope.
func Error(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
