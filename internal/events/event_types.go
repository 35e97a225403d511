package events

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
	EventSLABreached         EventType = "sla_breached"
)

// Actor identifies who caused an event. System events (the SLA sweep) carry
// an empty SubjectID and RoleSystem.
type Actor struct {
	SubjectID string           `json:"subject_id,omitempty"`
	Role      domain.ActorRole `json:"role"`
}

// RoleSystem marks events raised by background jobs.
const RoleSystem domain.ActorRole = "SYSTEM"

// SystemActor is the actor for events raised by the sweep.
func SystemActor() Actor {
	return Actor{Role: RoleSystem}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	TicketID       string      `json:"ticket_id"`
	OrganizationID string      `json:"organization_id"`
	Actor          Actor       `json:"actor"`
	Timestamp      time.Time   `json:"timestamp"`
	Payload        interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Priority         domain.TicketPriority `json:"priority"`
	Title            string                `json:"title"`
	FirstResponseDue time.Time             `json:"first_response_due"`
	ResolutionDue    time.Time             `json:"resolution_due"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
	AssigneeID         *string `json:"assignee_id,omitempty"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID     string                   `json:"comment_id"`
	AuthorRole    domain.ActorRole         `json:"author_role"`
	Visibility    domain.CommentVisibility `json:"visibility"`
	BodyPreview   string                   `json:"body_preview"`
	FirstResponse bool                     `json:"first_response"`
}

// SLABreachedPayload is published when a sweep flips a ticket to breached.
type SLABreachedPayload struct {
	Priority         domain.TicketPriority `json:"priority"`
	Status           domain.TicketStatus   `json:"status"`
	FirstResponseDue time.Time             `json:"first_response_due"`
	ResolutionDue    time.Time             `json:"resolution_due"`
	FirstResponseAt  *time.Time            `json:"first_response_at,omitempty"`
	DetectedAt       time.Time             `json:"detected_at"`
}
