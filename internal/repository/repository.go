package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
	// ErrStale is returned by guarded writes when the stored record changed
	// since the caller read it. Callers re-read and decide again.
	ErrStale = errors.New("record changed since it was read")
)

// TicketFilter narrows organization listings.
type TicketFilter struct {
	OrganizationID string
	RequesterID    string
	Statuses       []domain.TicketStatus
	Limit          int
	Offset         int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes the fields an edit or status transition owns, including
	// ResolvedAt and Breached. FirstResponseAt and the due dates are never
	// written. Since Breached depends on the first response, ErrStale is
	// returned when the stored FirstResponseAt differs from the ticket's.
	Update(ctx context.Context, ticket *domain.Ticket) error
	// RecordFirstResponse stores timer.FirstResponseAt and timer.Breached. The
	// first response is set once: ErrStale is returned when one is already
	// stored or when ResolvedAt differs from timer's.
	RecordFirstResponse(ctx context.Context, ticketID string, timer domain.SLATimer) error
	// UpdateBreached writes only timer.Breached, and only while the stored
	// milestones still equal timer's. Otherwise it returns ErrStale.
	UpdateBreached(ctx context.Context, ticketID string, timer domain.SLATimer) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// ListByStatuses scans across all organizations.
	ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error)
	ListByOrganization(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

// SLARuleRepository stores one rule per (organization, priority).
type SLARuleRepository interface {
	Create(ctx context.Context, rule *domain.SLARule) error
	Update(ctx context.Context, rule *domain.SLARule) error
	GetByID(ctx context.Context, id string) (*domain.SLARule, error)
	FindByOrgAndPriority(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]domain.SLARule, error)
	Delete(ctx context.Context, id string) error
}

// CommentRepository manages ticket thread comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.TicketComment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketComment, error)
}
