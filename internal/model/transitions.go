package model

// Scraping request state machine.
//
// Valid status graph:
//
//	pending ──► processing ──► filtering ──► enriching ──► completed
//	   │             │              │             │
//	   └─────────────┴──────────────┴─────────────┴──► failed
//
// completed and failed are terminal states.

import "fmt"

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusFiltering, StatusFailed},
	StatusFiltering:  {StatusEnriching, StatusFailed},
	StatusEnriching:  {StatusCompleted, StatusFailed},
	// completed and failed are terminal: no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusFiltering, StatusEnriching, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown scraping request status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state: no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for completed and failed.
func IsTerminal(s Status) bool { return s == StatusCompleted || s == StatusFailed }

// KeepPolling returns true for the states a polling client must keep polling on.
func KeepPolling(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}

// NonTerminal lists the states from which failed is reachable.
func NonTerminal() []Status {
	return []Status{StatusPending, StatusProcessing, StatusFiltering, StatusEnriching}
}
