package domain

// allowedTransitions is the single source of truth for status changes.
// CLOSED is not terminal: support tickets can always be reopened.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:      {TicketStatusOpen, TicketStatusClosed},
	TicketStatusOpen:     {TicketStatusPending, TicketStatusResolved, TicketStatusClosed},
	TicketStatusPending:  {TicketStatusOpen, TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved: {TicketStatusOpen, TicketStatusClosed},
	TicketStatusClosed:   {TicketStatusOpen},
}

// IsValidTransition reports whether a ticket may move from current to next.
func IsValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from current.
func AllowedTransitions(current TicketStatus) []TicketStatus {
	targets := allowedTransitions[current]
	out := make([]TicketStatus, len(targets))
	copy(out, targets)
	return out
}
