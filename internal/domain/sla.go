package domain

import "time"

// SLARule is a tenant's response/resolution commitment for one priority.
// At most one rule exists per (OrganizationID, Priority).
type SLARule struct {
	ID                   string
	OrganizationID       string
	Priority             TicketPriority
	FirstResponseMinutes int
	ResolutionMinutes    int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SLATimer is embedded in a ticket. The due dates are fixed at creation;
// Breached is derived and must always equal a fresh recomputation.
type SLATimer struct {
	FirstResponseDue time.Time
	ResolutionDue    time.Time
	FirstResponseAt  *time.Time
	ResolvedAt       *time.Time
	Breached         bool
}

// Clone returns a deep copy so callers never share the pointer fields.
func (t SLATimer) Clone() SLATimer {
	out := t
	if t.FirstResponseAt != nil {
		at := *t.FirstResponseAt
		out.FirstResponseAt = &at
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

// SameFirstResponse reports whether both timers recorded the same first
// response instant, or none.
func (t SLATimer) SameFirstResponse(other SLATimer) bool {
	return sameInstant(t.FirstResponseAt, other.FirstResponseAt)
}

// SameMilestones reports whether both timers recorded the same first response
// and resolution instants. Breached is a function of these and the due dates.
func (t SLATimer) SameMilestones(other SLATimer) bool {
	return sameInstant(t.FirstResponseAt, other.FirstResponseAt) && sameInstant(t.ResolvedAt, other.ResolvedAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
