package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

func TestTicketService_CreateTicket(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)

	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, t0, ticket.CreatedAt)
	require.NotNil(t, ticket.SLATimers)
	assert.Equal(t, t0.Add(time.Hour), ticket.SLATimers.FirstResponseDue)
	assert.Equal(t, t0.Add(8*time.Hour), ticket.SLATimers.ResolutionDue)
	assert.False(t, ticket.SLATimers.Breached)

	stored := f.stored(t, ticket.ID)
	assert.Equal(t, ticket.SLATimers, stored.SLATimers)

	created := f.eventsOfType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "org-1", created[0].OrganizationID)
}

func TestTicketService_CreateTicketWithoutRuleStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ticketSvc.CreateTicket(ctx, CreateTicketInput{
		OrganizationID: "org-1",
		RequesterID:    "customer-1",
		Title:          "VPN down",
		Priority:       "urgent",
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	tickets, err := f.tickets.ListByStatuses(ctx, domain.AllStatuses())
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Empty(t, f.eventsOfType(events.EventTicketCreated))
}

func TestTicketService_CreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.ticketSvc.CreateTicket(ctx, CreateTicketInput{OrganizationID: "org-1", RequesterID: "c", Title: "   ", Priority: "HIGH"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = f.ticketSvc.CreateTicket(ctx, CreateTicketInput{OrganizationID: "org-1", RequesterID: "c", Title: "x", Priority: "BLOCKER"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestTicketService_InvalidTransitionCarriesDetails(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	_, err := f.ticketSvc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketInput{Status: strPtr("RESOLVED")})
	require.Error(t, err)

	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidationFailed, domainErr.Code)
	assert.Equal(t, "NEW", domainErr.Details["from"])
	assert.Equal(t, "RESOLVED", domainErr.Details["to"])
	assert.Equal(t, domain.TicketStatusNew, f.stored(t, ticket.ID).Status)
}

func TestTicketService_SelfTransitionRejected(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	_, err := f.ticketSvc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketInput{Status: strPtr("new")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestTicketService_FirstAssignmentOpensNewTicket(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()

	t.Run("implicit NEW to OPEN", func(t *testing.T) {
		ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

		updated, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{AssigneeID: strPtr("agent-7")})
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusOpen, updated.Status)
		require.NotNil(t, updated.AssigneeID)
		assert.Equal(t, "agent-7", *updated.AssigneeID)
		assert.Equal(t, domain.TicketStatusOpen, f.stored(t, ticket.ID).Status)
	})

	t.Run("explicit status wins", func(t *testing.T) {
		ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

		updated, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{
			AssigneeID: strPtr("agent-7"),
			Status:     strPtr("CLOSED"),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, updated.Status)
	})

	t.Run("reassignment keeps status", func(t *testing.T) {
		ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)
		_, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{AssigneeID: strPtr("agent-7")})
		require.NoError(t, err)
		_, err = f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{Status: strPtr("PENDING")})
		require.NoError(t, err)

		updated, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{AssigneeID: strPtr("agent-9")})
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusPending, updated.Status)
	})

	assert.NotEmpty(t, f.eventsOfType(events.EventTicketAssigned))
	assert.NotEmpty(t, f.eventsOfType(events.EventTicketStatusChanged))
}

func TestTicketService_UpdateMissingTicket(t *testing.T) {
	f := newFixture(t)
	_, err := f.ticketSvc.UpdateTicket(context.Background(), "missing", UpdateTicketInput{Status: strPtr("OPEN")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestTicketService_ResolutionStopsClock(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	_, err := f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "agent-1", AuthorRole: "AGENT", Body: "On it"})
	require.NoError(t, err)
	_, err = f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{Status: strPtr("OPEN")})
	require.NoError(t, err)

	f.clock.Set(t0.Add(2 * time.Hour))
	resolved, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{Status: strPtr("RESOLVED")})
	require.NoError(t, err)
	require.NotNil(t, resolved.SLATimers.ResolvedAt)
	assert.Equal(t, t0.Add(2*time.Hour), *resolved.SLATimers.ResolvedAt)

	f.clock.Set(t0.Add(10 * time.Hour))
	stored := f.stored(t, ticket.ID)
	assert.False(t, CheckBreach(*stored.SLATimers, f.clock.Now()).Breached)

	reopened, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{Status: strPtr("OPEN")})
	require.NoError(t, err)
	assert.Nil(t, reopened.SLATimers.ResolvedAt)
	assert.True(t, reopened.SLATimers.Breached, "resolution due passed while reopened")
	assert.Equal(t, t0.Add(8*time.Hour), reopened.SLATimers.ResolutionDue)
}

func TestTicketService_ClosingStampsResolvedAndClosedAt(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)
	f.clock.Set(t0.Add(20 * time.Minute))

	closed, err := f.ticketSvc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketInput{Status: strPtr("CLOSED")})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	require.NotNil(t, closed.SLATimers.ResolvedAt)
	assert.Equal(t, t0.Add(20*time.Minute), *closed.SLATimers.ResolvedAt)
}

func TestTicketService_FirstResponseRecordedOnce(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	f.clock.Set(t0.Add(5 * time.Minute))
	_, err := f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "customer-1", AuthorRole: "CUSTOMER", Body: "Any news?"})
	require.NoError(t, err)
	assert.Nil(t, f.stored(t, ticket.ID).SLATimers.FirstResponseAt)

	f.clock.Set(t0.Add(10 * time.Minute))
	_, err = f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "agent-1", AuthorRole: "AGENT", Visibility: "INTERNAL", Body: "Looks like hardware"})
	require.NoError(t, err)
	assert.Nil(t, f.stored(t, ticket.ID).SLATimers.FirstResponseAt)

	f.clock.Set(t0.Add(15 * time.Minute))
	_, err = f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "agent-1", AuthorRole: "agent", Body: "We're on it"})
	require.NoError(t, err)

	f.clock.Set(t0.Add(25 * time.Minute))
	_, err = f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "admin-1", AuthorRole: "ADMIN", Body: "Escalated"})
	require.NoError(t, err)

	stored := f.stored(t, ticket.ID)
	require.NotNil(t, stored.SLATimers.FirstResponseAt)
	assert.Equal(t, t0.Add(15*time.Minute), *stored.SLATimers.FirstResponseAt)

	added := f.eventsOfType(events.EventTicketCommentAdded)
	require.Len(t, added, 4)
	firstResponses := 0
	for _, e := range added {
		if e.Payload.(events.TicketCommentAddedPayload).FirstResponse {
			firstResponses++
		}
	}
	assert.Equal(t, 1, firstResponses)
}

func TestTicketService_LateFirstResponseClearsBreach(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "t1", domain.TicketStatusOpen, &domain.SLATimer{
		FirstResponseDue: t0.Add(30 * time.Minute),
		ResolutionDue:    t0.Add(4 * time.Hour),
		Breached:         true,
	}, t0)
	f.clock.Set(t0.Add(45 * time.Minute))

	_, err := f.ticketSvc.AddComment(context.Background(), "t1", AddCommentInput{AuthorID: "agent-1", AuthorRole: "AGENT", Body: "Sorry for the wait"})
	require.NoError(t, err)

	stored := f.stored(t, "t1")
	assert.Equal(t, t0.Add(45*time.Minute), *stored.SLATimers.FirstResponseAt)
	assert.False(t, stored.SLATimers.Breached)
}

func TestTicketService_AddCommentRules(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	_, err := f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "c", AuthorRole: "CUSTOMER", Visibility: "INTERNAL", Body: "psst"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "c", AuthorRole: "ROBOT", Body: "beep"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = f.ticketSvc.AddComment(ctx, "missing", AddCommentInput{AuthorID: "c", AuthorRole: "CUSTOMER", Body: "hello"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestTicketService_ListComments(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	_, err := f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "a", AuthorRole: "AGENT", Visibility: "INTERNAL", Body: "note"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "a", AuthorRole: "AGENT", Body: "reply"})
	require.NoError(t, err)

	all, err := f.ticketSvc.ListComments(ctx, ticket.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	public, err := f.ticketSvc.ListComments(ctx, ticket.ID, false)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "reply", public[0].Body)
}

func TestTicketService_ListTickets(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	f.addRule(t, "org-2", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	mine := f.createTicket(t, "org-1", domain.TicketPriorityHigh)
	f.createTicket(t, "org-2", domain.TicketPriorityHigh)

	tickets, err := f.ticketSvc.ListTickets(ctx, "org-1", TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, mine.ID, tickets[0].ID)

	tickets, err = f.ticketSvc.ListTickets(ctx, "org-1", TicketListFilter{Statuses: []domain.TicketStatus{domain.TicketStatusClosed}})
	require.NoError(t, err)
	assert.Empty(t, tickets)

	tickets, err = f.ticketSvc.ListTickets(ctx, "org-1", TicketListFilter{RequesterID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, tickets)

	_, err = f.ticketSvc.ListTickets(ctx, "org-1", TicketListFilter{Statuses: []domain.TicketStatus{"DONE"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestTicketService_StoreFailureOnFirstResponseKeepsComment(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)
	f.tickets.setFailUpdate(ticket.ID, errors.New("connection reset"))

	f.clock.Set(t0.Add(10 * time.Minute))
	comment, err := f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "agent-1", AuthorRole: "AGENT", Body: "Looking now"})
	require.NoError(t, err)
	require.NotNil(t, comment)
	assert.Nil(t, f.stored(t, ticket.ID).SLATimers.FirstResponseAt)

	failed := f.logs.FilterMessage("failed to record first response").All()
	require.Len(t, failed, 1)
	assert.Equal(t, comment.ID, failed[0].ContextMap()["comment_id"])

	thread, err := f.ticketSvc.ListComments(ctx, ticket.ID, true)
	require.NoError(t, err)
	assert.Len(t, thread, 1)

	// The next staff reply stamps the earlier, lost response.
	f.tickets.setFailUpdate(ticket.ID, nil)
	f.clock.Set(t0.Add(20 * time.Minute))
	_, err = f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "agent-1", AuthorRole: "AGENT", Body: "Fixed"})
	require.NoError(t, err)

	stored := f.stored(t, ticket.ID)
	require.NotNil(t, stored.SLATimers.FirstResponseAt)
	assert.Equal(t, t0.Add(10*time.Minute), *stored.SLATimers.FirstResponseAt)
}

func TestTicketService_UpdateRetriesAfterConcurrentFirstResponse(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	ctx := context.Background()
	ticket := f.createTicket(t, "org-1", domain.TicketPriorityHigh)

	f.clock.Set(t0.Add(5 * time.Minute))
	f.tickets.beforeUpdate = func() {
		_, err := f.ticketSvc.AddComment(ctx, ticket.ID, AddCommentInput{AuthorID: "agent-2", AuthorRole: "AGENT", Body: "On it"})
		require.NoError(t, err)
	}

	updated, err := f.ticketSvc.UpdateTicket(ctx, ticket.ID, UpdateTicketInput{
		AssigneeID: strPtr("agent-1"),
		ActorID:    "admin-1",
		ActorRole:  domain.ActorRoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)

	stored := f.stored(t, ticket.ID)
	require.NotNil(t, stored.SLATimers.FirstResponseAt)
	assert.Equal(t, t0.Add(5*time.Minute), *stored.SLATimers.FirstResponseAt)
	require.NotNil(t, stored.AssigneeID)
	assert.Equal(t, "agent-1", *stored.AssigneeID)
	assert.Len(t, f.eventsOfType(events.EventTicketAssigned), 1)
}
