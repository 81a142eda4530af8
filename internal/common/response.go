package common

import (
	"encoding/json"
	"net/http"
)

// MessageBody is the `{message, error}` failure shape used by the payment endpoints.
type MessageBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONMessage renders `{message, error}` with the error text of err.
func JSONMessage(w http.ResponseWriter, status int, message string, err error) {
	body := MessageBody{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	JSON(w, status, body)
}
