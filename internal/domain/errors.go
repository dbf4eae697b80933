package domain

import "errors"

// Sentinel errors for domain-level error handling. The transport layer
// maps these to reply error codes.
var (
	ErrNoSession             = errors.New("no_session")
	ErrSessionAlreadyActive  = errors.New("session_already_active")
	ErrSessionNotLobby       = errors.New("session_not_lobby")
	ErrSessionNotRunning     = errors.New("session_not_running")
	ErrSessionFull           = errors.New("session_full")
	ErrTooFewPlayers         = errors.New("too_few_players")
	ErrNotHost               = errors.New("not_host")
	ErrEmptyName             = errors.New("empty_name")
	ErrNameTaken             = errors.New("name_taken")
	ErrParticipantNotFound   = errors.New("participant_not_found")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrNotOrderOwner         = errors.New("not_order_owner")
	ErrOrderAlreadyTerminal  = errors.New("order_already_terminal")
	ErrInsufficientCash      = errors.New("insufficient_cash")
	ErrInsufficientInventory = errors.New("insufficient_inventory")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
