package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// CreateTicketRequest payload. Organization and requester come from the token.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

// UpdateTicketRequest payload. Omitted fields are left unchanged; an empty
// assignee_id unassigns the ticket.
type UpdateTicketRequest struct {
	Status      *string `json:"status"`
	AssigneeID  *string `json:"assignee_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// CreateCommentRequest payload.
type CreateCommentRequest struct {
	Body       string `json:"body"`
	Visibility string `json:"visibility"`
}

// SLATimerResponse exposes a ticket's deadlines and breach state.
type SLATimerResponse struct {
	FirstResponseDue time.Time  `json:"first_response_due"`
	ResolutionDue    time.Time  `json:"resolution_due"`
	FirstResponseAt  *time.Time `json:"first_response_at"`
	ResolvedAt       *time.Time `json:"resolved_at"`
	Breached         bool       `json:"breached"`
}

// TicketResponse represents a ticket.
type TicketResponse struct {
	ID             string                `json:"id"`
	OrganizationID string                `json:"organization_id"`
	RequesterID    string                `json:"requester_id"`
	AssigneeID     *string               `json:"assignee_id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	SLA            *SLATimerResponse     `json:"sla"`
	AllowedNext    []domain.TicketStatus `json:"allowed_transitions"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	ClosedAt       *time.Time            `json:"closed_at"`
}

// CommentResponse represents a thread comment.
type CommentResponse struct {
	ID         string                   `json:"id"`
	TicketID   string                   `json:"ticket_id"`
	AuthorID   string                   `json:"author_id"`
	AuthorRole domain.ActorRole         `json:"author_role"`
	Visibility domain.CommentVisibility `json:"visibility"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:             ticket.ID,
		OrganizationID: ticket.OrganizationID,
		RequesterID:    ticket.RequesterID,
		AssigneeID:     ticket.AssigneeID,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		AllowedNext:    domain.AllowedTransitions(ticket.Status),
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ClosedAt:       ticket.ClosedAt,
	}
	if ticket.SLATimers != nil {
		resp.SLA = &SLATimerResponse{
			FirstResponseDue: ticket.SLATimers.FirstResponseDue,
			ResolutionDue:    ticket.SLATimers.ResolutionDue,
			FirstResponseAt:  ticket.SLATimers.FirstResponseAt,
			ResolvedAt:       ticket.SLATimers.ResolvedAt,
			Breached:         ticket.SLATimers.Breached,
		}
	}
	return resp
}

// NewCommentResponse maps a domain comment.
func NewCommentResponse(comment *domain.TicketComment) CommentResponse {
	return CommentResponse{
		ID:         comment.ID,
		TicketID:   comment.TicketID,
		AuthorID:   comment.AuthorID,
		AuthorRole: comment.AuthorRole,
		Visibility: comment.Visibility,
		Body:       comment.Body,
		CreatedAt:  comment.CreatedAt,
	}
}
