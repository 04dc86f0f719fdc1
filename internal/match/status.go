package match

import "github.com/kompite/arena/internal/domain"

// Status is the match lifecycle state.
type Status string

const (
	StatusMatchmaking Status = "matchmaking"
	StatusLocked      Status = "locked"
	StatusInProgress  Status = "in_progress"
	StatusValidation  Status = "validation"
	StatusSettlement  Status = "settlement"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusDisputed    Status = "disputed"
)

// transitions is the only legal edge set of the match state machine. Any
// step outside it is a bug or an attack, never a recoverable condition.
var transitions = map[Status][]Status{
	StatusMatchmaking: {StatusLocked, StatusCancelled},
	StatusLocked:      {StatusInProgress, StatusCancelled},
	StatusInProgress:  {StatusValidation, StatusDisputed},
	StatusValidation:  {StatusSettlement, StatusDisputed},
	StatusSettlement:  {StatusCompleted, StatusDisputed},
	StatusDisputed:    {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing edges.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// checkTransition returns the domain error for an illegal edge.
func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return domain.ErrInvalidTransition(string(from), string(to))
	}
	return nil
}
