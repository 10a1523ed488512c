package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the standard API response wrapper used across handlers.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// JSON writes a success or informational response using the common envelope.
func JSON(w http.ResponseWriter, status int, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Data: data})
}

// Error writes an error response with the shared envelope structure.
// code is the machine-readable error code (e.g. NOT_FOUND).
func Error(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Envelope{Code: status, Message: message, Error: code})
}

// ErrorWithData is Error with a payload, used for validation details.
func ErrorWithData(w http.ResponseWriter, status int, code, message string, data any) {
	write(w, status, Envelope{Code: status, Message: message, Error: code, Data: data})
}

func write(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("respond: encode payload failed", "error", err)
	}
}
