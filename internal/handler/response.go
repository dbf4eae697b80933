package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openpit/exchange/internal/domain"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// mapError translates a domain error into an HTTP status, a stable error
// code, and a message. The websocket command loop reuses the code and
// message and ignores the status.
func mapError(err error) (status int, code, message string) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, "validation_error", validationErr.Message
	}

	switch {
	case errors.Is(err, domain.ErrNoSession):
		return http.StatusNotFound, "no_session", err.Error()
	case errors.Is(err, domain.ErrSessionAlreadyActive):
		return http.StatusConflict, "session_already_active", err.Error()
	case errors.Is(err, domain.ErrSessionNotLobby):
		return http.StatusConflict, "session_not_lobby", err.Error()
	case errors.Is(err, domain.ErrSessionNotRunning):
		return http.StatusConflict, "session_not_running", err.Error()
	case errors.Is(err, domain.ErrSessionFull):
		return http.StatusConflict, "session_full", err.Error()
	case errors.Is(err, domain.ErrTooFewPlayers):
		return http.StatusConflict, "too_few_players", err.Error()
	case errors.Is(err, domain.ErrNotHost):
		return http.StatusForbidden, "not_host", err.Error()
	case errors.Is(err, domain.ErrEmptyName):
		return http.StatusBadRequest, "empty_name", err.Error()
	case errors.Is(err, domain.ErrNameTaken):
		return http.StatusConflict, "name_taken", err.Error()
	case errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound, "participant_not_found", err.Error()
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, "order_not_found", err.Error()
	case errors.Is(err, domain.ErrNotOrderOwner):
		return http.StatusForbidden, "not_order_owner", err.Error()
	case errors.Is(err, domain.ErrOrderAlreadyTerminal):
		return http.StatusConflict, "order_already_terminal", err.Error()
	case errors.Is(err, domain.ErrInsufficientCash):
		return http.StatusConflict, "insufficient_cash", err.Error()
	case errors.Is(err, domain.ErrInsufficientInventory):
		return http.StatusConflict, "insufficient_inventory", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "An unexpected error occurred"
	}
}
