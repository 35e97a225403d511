package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

const (
	ticketsCollection  = "tickets"
	rulesCollection    = "sla_rules"
	commentsCollection = "ticket_comments"
)

type ticketDoc struct {
	ID             string                 `firestore:"id"`
	OrganizationID string                 `firestore:"organization_id"`
	RequesterID    string                 `firestore:"requester_id"`
	AssigneeID     *string                `firestore:"assignee_id"`
	Title          string                 `firestore:"title"`
	Description    string                 `firestore:"description"`
	Status         string                 `firestore:"status"`
	Priority       string                 `firestore:"priority"`
	SLATimers      map[string]interface{} `firestore:"sla_timers"`
	CreatedAt      time.Time              `firestore:"created_at"`
	UpdatedAt      time.Time              `firestore:"updated_at"`
	ClosedAt       *time.Time             `firestore:"closed_at"`
}

// TicketRepository stores tickets as documents keyed by ticket id.
type TicketRepository struct {
	client *firestore.Client
}

// NewTicketRepository builds the Firestore ticket store.
func NewTicketRepository(client *firestore.Client) *TicketRepository {
	return &TicketRepository{client: client}
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	_, err := r.client.Collection(ticketsCollection).Doc(ticket.ID).Create(ctx, toTicketDoc(ticket))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.guardedUpdate(ctx, ticket.ID, func(current *domain.Ticket) ([]firestore.Update, error) {
		updates := []firestore.Update{
			{Path: "assignee_id", Value: ticket.AssigneeID},
			{Path: "title", Value: ticket.Title},
			{Path: "description", Value: ticket.Description},
			{Path: "status", Value: string(ticket.Status)},
			{Path: "priority", Value: string(ticket.Priority)},
			{Path: "closed_at", Value: ticket.ClosedAt},
			{Path: "updated_at", Value: ticket.UpdatedAt},
		}
		if current.SLATimers == nil || ticket.SLATimers == nil {
			return updates, nil
		}
		if !current.SLATimers.SameFirstResponse(*ticket.SLATimers) {
			return nil, repository.ErrStale
		}
		raw := timerToMap(ticket.SLATimers)
		return append(updates,
			timerUpdate(fieldResolvedAt, raw[fieldResolvedAt]),
			timerUpdate(fieldBreached, raw[fieldBreached]),
		), nil
	})
}

func (r *TicketRepository) RecordFirstResponse(ctx context.Context, ticketID string, timer domain.SLATimer) error {
	return r.guardedUpdate(ctx, ticketID, func(current *domain.Ticket) ([]firestore.Update, error) {
		stored := current.SLATimers
		if stored == nil || stored.FirstResponseAt != nil ||
			!stored.SameMilestones(domain.SLATimer{ResolvedAt: timer.ResolvedAt}) {
			return nil, repository.ErrStale
		}
		raw := timerToMap(&timer)
		return []firestore.Update{
			timerUpdate(fieldFirstResponseAt, raw[fieldFirstResponseAt]),
			timerUpdate(fieldBreached, raw[fieldBreached]),
			{Path: "updated_at", Value: firestore.ServerTimestamp},
		}, nil
	})
}

func (r *TicketRepository) UpdateBreached(ctx context.Context, ticketID string, timer domain.SLATimer) error {
	return r.guardedUpdate(ctx, ticketID, func(current *domain.Ticket) ([]firestore.Update, error) {
		if current.SLATimers == nil || !current.SLATimers.SameMilestones(timer) {
			return nil, repository.ErrStale
		}
		return []firestore.Update{
			timerUpdate(fieldBreached, timer.Breached),
			{Path: "updated_at", Value: firestore.ServerTimestamp},
		}, nil
	})
}

// guardedUpdate reads the ticket and writes the updates built by plan in one
// transaction. plan returns repository.ErrStale to abort without writing.
func (r *TicketRepository) guardedUpdate(ctx context.Context, id string, plan func(current *domain.Ticket) ([]firestore.Update, error)) error {
	ref := r.client.Collection(ticketsCollection).Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		current, err := decodeTicket(snap)
		if err != nil {
			return err
		}
		updates, err := plan(current)
		if err != nil {
			return err
		}
		return tx.Update(ref, updates)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrStale):
		return repository.ErrStale
	case status.Code(err) == codes.NotFound:
		return repository.ErrNotFound
	}
	return fmt.Errorf("update ticket: %w", err)
}

// timerUpdate addresses one field of the nested timer map; due dates are
// written once by Create and never through here.
func timerUpdate(field string, value interface{}) firestore.Update {
	return firestore.Update{FieldPath: firestore.FieldPath{"sla_timers", field}, Value: value}
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	snap, err := r.client.Collection(ticketsCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return decodeTicket(snap)
}

func (r *TicketRepository) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	iter := r.client.Collection(ticketsCollection).Where("status", "in", values).Documents(ctx)
	tickets, err := collectTickets(iter)
	if err != nil {
		return nil, err
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (r *TicketRepository) ListByOrganization(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	query := r.client.Collection(ticketsCollection).Where("organization_id", "==", filter.OrganizationID)
	if filter.RequesterID != "" {
		query = query.Where("requester_id", "==", filter.RequesterID)
	}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		query = query.Where("status", "in", values)
	}
	tickets, err := collectTickets(query.Documents(ctx))
	if err != nil {
		return nil, err
	}
	// Sorted in memory to avoid requiring a composite index.
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].UpdatedAt.After(tickets[j].UpdatedAt)
	})

	limit, offset := filter.Limit, filter.Offset
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(tickets) {
		end = len(tickets)
	}
	return tickets[offset:end], nil
}

func collectTickets(iter *firestore.DocumentIterator) ([]domain.Ticket, error) {
	defer iter.Stop()
	var tickets []domain.Ticket
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate tickets: %w", err)
		}
		ticket, err := decodeTicket(snap)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, nil
}

func decodeTicket(snap *firestore.DocumentSnapshot) (*domain.Ticket, error) {
	var doc ticketDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", snap.Ref.ID, err)
	}
	return fromTicketDoc(doc)
}

func toTicketDoc(ticket *domain.Ticket) ticketDoc {
	return ticketDoc{
		ID:             ticket.ID,
		OrganizationID: ticket.OrganizationID,
		RequesterID:    ticket.RequesterID,
		AssigneeID:     ticket.AssigneeID,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Status:         string(ticket.Status),
		Priority:       string(ticket.Priority),
		SLATimers:      timerToMap(ticket.SLATimers),
		CreatedAt:      ticket.CreatedAt.UTC(),
		UpdatedAt:      ticket.UpdatedAt.UTC(),
		ClosedAt:       ticket.ClosedAt,
	}
}

func fromTicketDoc(doc ticketDoc) (*domain.Ticket, error) {
	timer, err := timerFromMap(doc.SLATimers)
	if err != nil {
		return nil, fmt.Errorf("decode sla timers for ticket %s: %w", doc.ID, err)
	}
	return &domain.Ticket{
		ID:             doc.ID,
		OrganizationID: doc.OrganizationID,
		RequesterID:    doc.RequesterID,
		AssigneeID:     doc.AssigneeID,
		Title:          doc.Title,
		Description:    doc.Description,
		Status:         domain.TicketStatus(doc.Status),
		Priority:       domain.TicketPriority(doc.Priority),
		SLATimers:      timer,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
		ClosedAt:       doc.ClosedAt,
	}, nil
}
