package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "NEW"
	TicketStatusOpen     TicketStatus = "OPEN"
	TicketStatusPending  TicketStatus = "PENDING"
	TicketStatusResolved TicketStatus = "RESOLVED"
	TicketStatusClosed   TicketStatus = "CLOSED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// AllStatuses lists every ticket status.
func AllStatuses() []TicketStatus {
	return []TicketStatus{
		TicketStatusNew,
		TicketStatusOpen,
		TicketStatusPending,
		TicketStatusResolved,
		TicketStatusClosed,
	}
}

// ActiveStatuses lists statuses whose SLA clocks are still running.
func ActiveStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusNew, TicketStatusOpen, TicketStatusPending}
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusPending, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// IsActive reports whether SLA clocks run in this status.
func (s TicketStatus) IsActive() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusPending:
		return true
	}
	return false
}

// ParseStatus normalizes case and validates.
func ParseStatus(raw string) (TicketStatus, bool) {
	s := TicketStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// ParsePriority accepts any letter case, e.g. "high" or "HIGH".
func ParsePriority(raw string) (TicketPriority, bool) {
	p := TicketPriority(strings.ToUpper(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	OrganizationID string
	RequesterID    string
	AssigneeID     *string
	Title          string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	SLATimers      *SLATimer
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
}
