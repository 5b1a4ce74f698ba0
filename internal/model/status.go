package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Status is the lifecycle state of a tracked job application.
type Status string

const (
	StatusApplied   Status = "applied"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// AllStatuses lists every valid status value in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusApplied, StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn}
}

// ParseStatus validates a raw string against the known status values.
// Matching is case-insensitive and tolerates surrounding whitespace.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllStatuses() {
		if s == known {
			return s, nil
		}
	}
	return "", eris.Errorf("model: unknown status %q", raw)
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusWithdrawn
}

// statusTransitions maps each non-terminal status to the statuses it
// may move to. Interview repeats for multi-round processes. An
// accepted offer leaves the tracker's scope, so offer only moves to
// rejected or withdrawn.
var statusTransitions = map[Status][]Status{
	StatusApplied:   {StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn},
	StatusInterview: {StatusInterview, StatusOffer, StatusRejected, StatusWithdrawn},
	StatusOffer:     {StatusRejected, StatusWithdrawn},
}

// CanTransition reports whether moving from s to next is a valid
// lifecycle transition. Staying put is not a transition and always
// reports false except for interview, which re-enters on every
// additional round.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
