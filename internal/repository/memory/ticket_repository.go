// Package memory provides mutex-guarded in-memory stores for tests and
// single-node development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

// TicketRepository is an in-memory repository.TicketRepository.
type TicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewTicketRepository creates an empty store.
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[string]domain.Ticket)}
}

var _ repository.TicketRepository = (*TicketRepository)(nil)

func (r *TicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tickets[ticket.ID]; exists {
		return repository.ErrDuplicate
	}
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *TicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	updated := cloneTicket(*ticket)
	updated.SLATimers = nil
	if existing.SLATimers != nil {
		timer := existing.SLATimers.Clone()
		if ticket.SLATimers != nil {
			if !timer.SameFirstResponse(*ticket.SLATimers) {
				return repository.ErrStale
			}
			incoming := ticket.SLATimers.Clone()
			timer.ResolvedAt = incoming.ResolvedAt
			timer.Breached = incoming.Breached
		}
		updated.SLATimers = &timer
	}
	r.tickets[ticket.ID] = updated
	return nil
}

func (r *TicketRepository) RecordFirstResponse(_ context.Context, ticketID string, timer domain.SLATimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[ticketID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.SLATimers == nil || existing.SLATimers.FirstResponseAt != nil ||
		!sameResolution(*existing.SLATimers, timer) {
		return repository.ErrStale
	}
	stored := existing.SLATimers.Clone()
	incoming := timer.Clone()
	stored.FirstResponseAt = incoming.FirstResponseAt
	stored.Breached = incoming.Breached
	existing.SLATimers = &stored
	r.tickets[ticketID] = existing
	return nil
}

func (r *TicketRepository) UpdateBreached(_ context.Context, ticketID string, timer domain.SLATimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[ticketID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.SLATimers == nil || !existing.SLATimers.SameMilestones(timer) {
		return repository.ErrStale
	}
	stored := existing.SLATimers.Clone()
	stored.Breached = timer.Breached
	existing.SLATimers = &stored
	r.tickets[ticketID] = existing
	return nil
}

func sameResolution(a, b domain.SLATimer) bool {
	return domain.SLATimer{ResolvedAt: a.ResolvedAt}.SameMilestones(domain.SLATimer{ResolvedAt: b.ResolvedAt})
}

func (r *TicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r *TicketRepository) ListByStatuses(_ context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	wanted := make(map[domain.TicketStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wanted[s] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if _, ok := wanted[ticket.Status]; ok {
			result = append(result, cloneTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *TicketRepository) ListByOrganization(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	wanted := make(map[domain.TicketStatus]struct{}, len(filter.Statuses))
	for _, s := range filter.Statuses {
		wanted[s] = struct{}{}
	}
	r.mu.RLock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.RequesterID != "" && ticket.RequesterID != filter.RequesterID {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[ticket.Status]; !ok {
				continue
			}
		}
		result = append(result, cloneTicket(ticket))
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func paginate(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tickets) {
		return nil
	}
	end := offset + limit
	if end > len(tickets) {
		end = len(tickets)
	}
	return tickets[offset:end]
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	out := t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		out.AssigneeID = &id
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		out.ClosedAt = &at
	}
	if t.SLATimers != nil {
		timer := t.SLATimers.Clone()
		out.SLATimers = &timer
	}
	return out
}
