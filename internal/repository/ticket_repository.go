package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

const ticketColumns = `id, organization_id, requester_id, assignee_id, title, description, status, priority,
               sla_first_response_due, sla_resolution_due, sla_first_response_at, sla_resolved_at, sla_breached,
               created_at, updated_at, closed_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres ticket store.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, organization_id, requester_id, assignee_id, title, description, status, priority,
            sla_first_response_due, sla_resolution_due, sla_first_response_at, sla_resolved_at, sla_breached,
            created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	timer := timerColumnsOf(ticket.SLATimers)
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.OrganizationID,
		ticket.RequesterID,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		timer.firstResponseDue,
		timer.resolutionDue,
		timer.firstResponseAt,
		timer.resolvedAt,
		timer.breached,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, title=$2, description=$3, status=$4, priority=$5,
            sla_resolved_at=$6, sla_breached=$7, closed_at=$8, updated_at=$9
        WHERE id=$10 AND sla_first_response_at IS NOT DISTINCT FROM $11::timestamptz`
	timer := timerColumnsOf(ticket.SLATimers)
	cmd, err := r.pool.Exec(ctx, query,
		ticket.AssigneeID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		timer.resolvedAt,
		timer.breached,
		ticket.ClosedAt,
		ticket.UpdatedAt,
		ticket.ID,
		timer.firstResponseAt,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrStale(ctx, ticket.ID)
	}
	return nil
}

func (r *ticketRepository) RecordFirstResponse(ctx context.Context, ticketID string, timer domain.SLATimer) error {
	const query = `
        UPDATE tickets SET sla_first_response_at=$1, sla_breached=$2, updated_at=NOW()
        WHERE id=$3 AND sla_first_response_due IS NOT NULL AND sla_first_response_at IS NULL
            AND sla_resolved_at IS NOT DISTINCT FROM $4::timestamptz`
	cmd, err := r.pool.Exec(ctx, query, timer.FirstResponseAt, timer.Breached, ticketID, timer.ResolvedAt)
	if err != nil {
		return fmt.Errorf("record first response: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrStale(ctx, ticketID)
	}
	return nil
}

func (r *ticketRepository) UpdateBreached(ctx context.Context, ticketID string, timer domain.SLATimer) error {
	const query = `
        UPDATE tickets SET sla_breached=$1, updated_at=NOW()
        WHERE id=$2 AND sla_first_response_due IS NOT NULL
            AND sla_first_response_at IS NOT DISTINCT FROM $3::timestamptz
            AND sla_resolved_at IS NOT DISTINCT FROM $4::timestamptz`
	cmd, err := r.pool.Exec(ctx, query, timer.Breached, ticketID, timer.FirstResponseAt, timer.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update sla breach: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return r.missingOrStale(ctx, ticketID)
	}
	return nil
}

// missingOrStale explains a guarded write that matched no row.
func (r *ticketRepository) missingOrStale(ctx context.Context, ticketID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id=$1)`, ticketID).Scan(&exists); err != nil {
		return fmt.Errorf("check ticket: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStale
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses))
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE status IN (%s) ORDER BY created_at ASC`,
		ticketColumns, strings.Join(placeholders, ","))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets by status: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByOrganization(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"organization_id=$1"}
	args := []any{filter.OrganizationID}

	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

type timerColumns struct {
	firstResponseDue *time.Time
	resolutionDue    *time.Time
	firstResponseAt  *time.Time
	resolvedAt       *time.Time
	breached         bool
}

func timerColumnsOf(timer *domain.SLATimer) timerColumns {
	if timer == nil {
		return timerColumns{}
	}
	frd, rd := timer.FirstResponseDue, timer.ResolutionDue
	return timerColumns{
		firstResponseDue: &frd,
		resolutionDue:    &rd,
		firstResponseAt:  timer.FirstResponseAt,
		resolvedAt:       timer.ResolvedAt,
		breached:         timer.Breached,
	}
}

// timerFromColumns returns nil when the row predates SLA timers.
func timerFromColumns(cols timerColumns) *domain.SLATimer {
	if cols.firstResponseDue == nil || cols.resolutionDue == nil {
		return nil
	}
	return &domain.SLATimer{
		FirstResponseDue: cols.firstResponseDue.UTC(),
		ResolutionDue:    cols.resolutionDue.UTC(),
		FirstResponseAt:  cols.firstResponseAt,
		ResolvedAt:       cols.resolvedAt,
		Breached:         cols.breached,
	}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var cols timerColumns
	if err := row.Scan(
		&ticket.ID,
		&ticket.OrganizationID,
		&ticket.RequesterID,
		&ticket.AssigneeID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&cols.firstResponseDue,
		&cols.resolutionDue,
		&cols.firstResponseAt,
		&cols.resolvedAt,
		&cols.breached,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	ticket.SLATimers = timerFromColumns(cols)
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
