package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Ishaan29/terpspark-backend/internal/domain"
)

type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, resp APIResponse) {
	resp.Timestamp = time.Now().UTC()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIResponse{Success: true, Message: message, Data: data})
}

// writeError maps a domain error kind to its HTTP status so clients can
// branch on stable, distinguishable outcomes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindInvalidState:
		status = http.StatusBadRequest
	case domain.KindConflict:
		status = http.StatusConflict
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindValidation:
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, APIResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
		Hint:    domain.HintOf(err),
	})
}
