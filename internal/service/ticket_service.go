package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/clock"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// maxStaleRetries bounds re-reads when a guarded write loses a race.
const maxStaleRetries = 3

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	calculator *TimerCalculator
	dispatcher events.Dispatcher
	clock      clock.Clock
	logger     *zap.Logger
	validator  *validator.Validate
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	Calculator  *TimerCalculator
	Dispatcher  events.Dispatcher
	Clock       clock.Clock
	Logger      *zap.Logger
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	OrganizationID string `validate:"required"`
	RequesterID    string `validate:"required"`
	Title          string `validate:"required,max=200"`
	Description    string `validate:"max=10000"`
	Priority       string `validate:"required"`
}

// UpdateTicketInput lists the optional changes of an update. A nil field is
// left unchanged; an empty AssigneeID unassigns the ticket.
type UpdateTicketInput struct {
	Status      *string
	AssigneeID  *string
	Title       *string `validate:"omitempty,min=1,max=200"`
	Description *string `validate:"omitempty,max=10000"`
	ActorID     string
	ActorRole   domain.ActorRole
}

// AddCommentInput describes a comment. Visibility defaults to PUBLIC.
type AddCommentInput struct {
	AuthorID   string `validate:"required"`
	AuthorRole string `validate:"required"`
	Visibility string
	Body       string `validate:"required,max=20000"`
}

// TicketListFilter narrows ListTickets.
type TicketListFilter struct {
	RequesterID string
	Statuses    []domain.TicketStatus
	Limit       int
	Offset      int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		calculator: deps.Calculator,
		dispatcher: deps.Dispatcher,
		clock:      deps.Clock,
		logger:     deps.Logger,
		validator:  newValidator(),
	}
}

// CreateTicket opens a NEW ticket with SLA timers anchored at its creation
// time. A missing SLA rule aborts creation and nothing is stored.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	priority, ok := domain.ParsePriority(input.Priority)
	if !ok {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}

	createdAt := s.clock.Now()
	timers, err := s.calculator.CalculateTimers(ctx, input.OrganizationID, priority, createdAt)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:             uuid.NewString(),
		OrganizationID: input.OrganizationID,
		RequesterID:    input.RequesterID,
		Title:          input.Title,
		Description:    input.Description,
		Status:         domain.TicketStatusNew,
		Priority:       priority,
		SLATimers:      &timers,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("organization_id", ticket.OrganizationID),
		zap.String("priority", string(ticket.Priority)),
		zap.Time("first_response_due", timers.FirstResponseDue),
		zap.Time("resolution_due", timers.ResolutionDue))

	s.publishEvent(ctx, events.Event{
		Type:           events.EventTicketCreated,
		TicketID:       ticket.ID,
		OrganizationID: ticket.OrganizationID,
		Actor:          events.Actor{SubjectID: input.RequesterID, Role: domain.ActorRoleCustomer},
		Payload: events.TicketCreatedPayload{
			Priority:         ticket.Priority,
			Title:            ticket.Title,
			FirstResponseDue: timers.FirstResponseDue,
			ResolutionDue:    timers.ResolutionDue,
		},
	})
	return ticket, nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

// ListTickets returns an organization's tickets, most recently updated first.
func (s *TicketService) ListTickets(ctx context.Context, organizationID string, filter TicketListFilter) ([]domain.Ticket, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, apperrors.NewValidationError("organization_id is required", nil)
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": string(st)})
		}
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	tickets, err := s.tickets.ListByOrganization(ctx, repository.TicketFilter{
		OrganizationID: organizationID,
		RequesterID:    filter.RequesterID,
		Statuses:       filter.Statuses,
		Limit:          filter.Limit,
		Offset:         filter.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// UpdateTicket applies field, assignment and status changes. Giving a NEW,
// unassigned ticket its first assignee also moves it to OPEN unless the
// caller asked for a status explicitly.
func (s *TicketService) UpdateTicket(ctx context.Context, id string, input UpdateTicketInput) (*domain.Ticket, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}

	var (
		ticket      *domain.Ticket
		oldStatus   domain.TicketStatus
		oldAssignee *string
		err         error
	)
	for attempt := 1; ; attempt++ {
		ticket, oldStatus, oldAssignee, err = s.applyUpdate(ctx, id, input)
		if !errors.Is(err, repository.ErrStale) || attempt == maxStaleRetries {
			break
		}
		s.logger.Debug("ticket changed concurrently; retrying update",
			zap.String("ticket_id", id), zap.Int("attempt", attempt))
	}
	if err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, apperrors.NewConflict("ticket was modified concurrently; retry", map[string]any{"id": id})
		}
		return nil, err
	}
	assigned := !sameAssignee(oldAssignee, ticket.AssigneeID)

	actor := events.Actor{SubjectID: input.ActorID, Role: input.ActorRole}
	if assigned {
		s.publishEvent(ctx, events.Event{
			Type:           events.EventTicketAssigned,
			TicketID:       ticket.ID,
			OrganizationID: ticket.OrganizationID,
			Actor:          actor,
			Payload: events.TicketAssignedPayload{
				PreviousAssigneeID: oldAssignee,
				AssigneeID:         ticket.AssigneeID,
			},
		})
	}
	if ticket.Status != oldStatus {
		s.logger.Info("ticket status changed",
			zap.String("ticket_id", ticket.ID),
			zap.String("from", string(oldStatus)),
			zap.String("to", string(ticket.Status)))
		s.publishEvent(ctx, events.Event{
			Type:           events.EventTicketStatusChanged,
			TicketID:       ticket.ID,
			OrganizationID: ticket.OrganizationID,
			Actor:          actor,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
			},
		})
	}
	return ticket, nil
}

// applyUpdate reads the ticket, applies input and writes it back. It returns
// repository.ErrStale when a first response landed in between.
func (s *TicketService) applyUpdate(ctx context.Context, id string, input UpdateTicketInput) (*domain.Ticket, domain.TicketStatus, *string, error) {
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return nil, "", nil, err
	}

	now := s.clock.Now()
	oldStatus := ticket.Status
	oldAssignee := ticket.AssigneeID
	target := ticket.Status

	if input.Status != nil {
		next, ok := domain.ParseStatus(*input.Status)
		if !ok {
			return nil, "", nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
		}
		if !domain.IsValidTransition(ticket.Status, next) {
			return nil, "", nil, apperrors.NewInvalidTransition(string(ticket.Status), string(next))
		}
		target = next
	}

	if input.AssigneeID != nil {
		assignee := strings.TrimSpace(*input.AssigneeID)
		if assignee == "" {
			ticket.AssigneeID = nil
		} else {
			ticket.AssigneeID = &assignee
		}
		if oldAssignee == nil && ticket.AssigneeID != nil && oldStatus == domain.TicketStatusNew && input.Status == nil {
			target = domain.TicketStatusOpen
		}
	}
	if input.Title != nil {
		ticket.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		ticket.Description = strings.TrimSpace(*input.Description)
	}

	if target != oldStatus {
		applyTransition(ticket, target, now)
	}
	ticket.UpdatedAt = now

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		if errors.Is(err, repository.ErrStale) {
			return nil, "", nil, err
		}
		return nil, "", nil, fmt.Errorf("update ticket: %w", err)
	}
	return ticket, oldStatus, oldAssignee, nil
}

// applyTransition moves the ticket to next and keeps the resolution clock in
// step: resolving or closing stops it, reopening resumes it against the
// original due date. Breached is recomputed afterwards.
func applyTransition(ticket *domain.Ticket, next domain.TicketStatus, now time.Time) {
	ticket.Status = next
	switch next {
	case domain.TicketStatusResolved:
		stampResolved(ticket, now)
	case domain.TicketStatusClosed:
		closedAt := now
		ticket.ClosedAt = &closedAt
		stampResolved(ticket, now)
	case domain.TicketStatusOpen:
		ticket.ClosedAt = nil
		if ticket.SLATimers != nil {
			ticket.SLATimers.ResolvedAt = nil
		}
	}
	if ticket.SLATimers != nil {
		updated := CheckBreach(*ticket.SLATimers, now)
		ticket.SLATimers = &updated
	}
}

func stampResolved(ticket *domain.Ticket, now time.Time) {
	if ticket.SLATimers == nil || ticket.SLATimers.ResolvedAt != nil {
		return
	}
	resolvedAt := now
	ticket.SLATimers.ResolvedAt = &resolvedAt
}

// AddComment stores a comment. The first public reply by an agent or admin
// records the ticket's first response and re-evaluates its breach flag.
func (s *TicketService) AddComment(ctx context.Context, ticketID string, input AddCommentInput) (*domain.TicketComment, error) {
	input.Body = strings.TrimSpace(input.Body)
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	role := domain.ActorRole(strings.ToUpper(input.AuthorRole))
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid author role", map[string]any{"author_role": input.AuthorRole})
	}
	visibility := domain.CommentVisibilityPublic
	if input.Visibility != "" {
		visibility = domain.CommentVisibility(strings.ToUpper(input.Visibility))
	}
	switch visibility {
	case domain.CommentVisibilityPublic:
	case domain.CommentVisibilityInternal:
		if !role.IsStaff() {
			return nil, apperrors.NewForbidden("customers cannot post internal notes")
		}
	default:
		return nil, apperrors.NewValidationError("invalid visibility", map[string]any{"visibility": input.Visibility})
	}

	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	comment := &domain.TicketComment{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		AuthorID:   input.AuthorID,
		AuthorRole: role,
		Visibility: visibility,
		Body:       input.Body,
		CreatedAt:  now,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, fmt.Errorf("create comment: %w", err)
	}

	firstResponse := false
	if comment.IsFirstResponseCandidate() && ticket.SLATimers != nil && ticket.SLATimers.FirstResponseAt == nil {
		firstResponse = s.recordFirstResponse(ctx, ticket, comment, now)
	}

	s.publishEvent(ctx, events.Event{
		Type:           events.EventTicketCommentAdded,
		TicketID:       ticket.ID,
		OrganizationID: ticket.OrganizationID,
		Actor:          events.Actor{SubjectID: comment.AuthorID, Role: comment.AuthorRole},
		Payload: events.TicketCommentAddedPayload{
			CommentID:     comment.ID,
			AuthorRole:    comment.AuthorRole,
			Visibility:    comment.Visibility,
			BodyPreview:   stringPreview(comment.Body, 140),
			FirstResponse: firstResponse,
		},
	})
	return comment, nil
}

// recordFirstResponse stamps the ticket's first response after comment was
// stored. The comment write and the timer write are not atomic: a failed
// timer write is logged and the comment still stands. The stamp uses the
// earliest qualifying comment in the thread, so the next staff reply repairs
// a stamp lost that way.
func (s *TicketService) recordFirstResponse(ctx context.Context, ticket *domain.Ticket, comment *domain.TicketComment, now time.Time) bool {
	respondedAt := comment.CreatedAt
	if thread, err := s.comments.ListByTicket(ctx, ticket.ID); err == nil {
		for i := range thread {
			if thread[i].IsFirstResponseCandidate() && thread[i].CreatedAt.Before(respondedAt) {
				respondedAt = thread[i].CreatedAt
			}
		}
	}

	timer := ticket.SLATimers.Clone()
	timer.FirstResponseAt = &respondedAt
	timer = CheckBreach(timer, now)
	if err := s.tickets.RecordFirstResponse(ctx, ticket.ID, timer); err != nil {
		if errors.Is(err, repository.ErrStale) {
			s.logger.Debug("first response already recorded", zap.String("ticket_id", ticket.ID))
			return false
		}
		s.logger.Error("failed to record first response",
			zap.String("ticket_id", ticket.ID),
			zap.String("comment_id", comment.ID),
			zap.Error(err))
		return false
	}
	s.logger.Info("first response recorded",
		zap.String("ticket_id", ticket.ID),
		zap.Time("first_response_at", respondedAt),
		zap.Time("first_response_due", timer.FirstResponseDue),
		zap.Bool("breached", timer.Breached))
	return true
}

// ListComments returns a ticket's thread oldest first. Internal notes are
// dropped unless includeInternal is set.
func (s *TicketService) ListComments(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if includeInternal {
		return comments, nil
	}
	visible := make([]domain.TicketComment, 0, len(comments))
	for _, c := range comments {
		if c.Visibility == domain.CommentVisibilityPublic {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func stringPreview(body string, max int) string {
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	return string(runes[:max]) + "..."
}
