package domain

import "time"

// SessionStatus represents the lifecycle state of a game session.
type SessionStatus string

const (
	SessionStatusLobby   SessionStatus = "lobby"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusEnded   SessionStatus = "ended"
)

// Session is one instance of the trading game. The server hosts at most
// one non-ended session at a time.
type Session struct {
	SessionID      string
	HostID         string // empty in the lobby until the first participant joins
	Status         SessionStatus
	Rules          GameRules // snapshot taken at creation
	ParticipantIDs []string  // admission order
	CreatedAt      time.Time
	StartedAt      *time.Time
	EndedAt        *time.Time
}

// RemainingSeconds returns the whole seconds left on the game clock,
// clamped at zero. It returns 0 unless the session is running.
func (s *Session) RemainingSeconds(now time.Time) int64 {
	if s.Status != SessionStatusRunning || s.StartedAt == nil {
		return 0
	}
	left := s.Rules.GameDuration - now.Sub(*s.StartedAt)
	if left < 0 {
		return 0
	}
	return int64(left / time.Second)
}

// RemoveParticipant drops pid from the admission-ordered list.
func (s *Session) RemoveParticipant(pid string) {
	for i, id := range s.ParticipantIDs {
		if id == pid {
			s.ParticipantIDs = append(s.ParticipantIDs[:i], s.ParticipantIDs[i+1:]...)
			return
		}
	}
}
