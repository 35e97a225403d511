package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-sla/internal/clock"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	"github.com/spec-kit/helpdesk-sla/internal/repository/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clock      *clock.Manual
	tickets    *stubTicketRepo
	comments   *memory.CommentRepository
	rules      *memory.SLARuleRepository
	ruleSvc    *SLARuleService
	ticketSvc  *TicketService
	dispatcher events.Dispatcher
	logs       *observer.ObservedLogs
	logger     *zap.Logger

	mu        sync.Mutex
	published []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		clock:    clock.NewManual(t0),
		tickets:  newStubTicketRepo(),
		comments: memory.NewCommentRepository(),
		rules:    memory.NewSLARuleRepository(),
		logs:     logs,
		logger:   zap.New(core),
	}
	f.dispatcher = events.NewInMemoryDispatcher(f.logger)
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventTicketCommentAdded,
		events.EventSLABreached,
	} {
		f.dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.published = append(f.published, e)
			return nil
		})
	}

	f.ruleSvc = NewSLARuleService(f.rules, f.clock, f.logger)
	f.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:  f.tickets,
		CommentRepo: f.comments,
		Calculator:  NewTimerCalculator(f.ruleSvc),
		Dispatcher:  f.dispatcher,
		Clock:       f.clock,
		Logger:      f.logger,
	})
	return f
}

func (f *fixture) monitor(opts SLAMonitorOptions) *SLAMonitor {
	return NewSLAMonitor(SLAMonitorDependencies{
		TicketRepo: f.tickets,
		Dispatcher: f.dispatcher,
		Clock:      f.clock,
		Logger:     f.logger,
		Options:    opts,
	})
}

func (f *fixture) addRule(t *testing.T, org string, priority domain.TicketPriority, firstResponse, resolution int) {
	t.Helper()
	_, err := f.ruleSvc.CreateRule(context.Background(), SLARuleInput{
		OrganizationID:       org,
		Priority:             string(priority),
		FirstResponseMinutes: firstResponse,
		ResolutionMinutes:    resolution,
	})
	require.NoError(t, err)
}

func (f *fixture) createTicket(t *testing.T, org string, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.ticketSvc.CreateTicket(context.Background(), CreateTicketInput{
		OrganizationID: org,
		RequesterID:    "customer-1",
		Title:          "Printer on fire",
		Priority:       string(priority),
	})
	require.NoError(t, err)
	return ticket
}

// seed stores a ticket directly, bypassing the calculator.
func (f *fixture) seed(t *testing.T, id string, status domain.TicketStatus, timer *domain.SLATimer, createdAt time.Time) {
	t.Helper()
	require.NoError(t, f.tickets.Create(context.Background(), &domain.Ticket{
		ID:             id,
		OrganizationID: "org-1",
		RequesterID:    "customer-1",
		Title:          id,
		Status:         status,
		Priority:       domain.TicketPriorityHigh,
		SLATimers:      timer,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}))
}

func (f *fixture) stored(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) eventsOfType(eventType events.EventType) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func dueTimer(firstResponseDue, resolutionDue time.Time) *domain.SLATimer {
	return &domain.SLATimer{FirstResponseDue: firstResponseDue, ResolutionDue: resolutionDue}
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

// stubTicketRepo wraps the in-memory store with failure injection and call
// recording for the sweep tests.
type stubTicketRepo struct {
	*memory.TicketRepository

	mu          sync.Mutex
	listErr     error
	extra       []domain.Ticket
	failUpdate  map[string]error
	panicUpdate map[string]bool
	updateDelay time.Duration
	requested   [][]domain.TicketStatus
	updatedIDs  []string
	// afterList runs between the sweep's fetch and its writes.
	afterList func()
	// beforeUpdate runs once, ahead of the next Update.
	beforeUpdate func()
}

func newStubTicketRepo() *stubTicketRepo {
	return &stubTicketRepo{
		TicketRepository: memory.NewTicketRepository(),
		failUpdate:       map[string]error{},
		panicUpdate:      map[string]bool{},
	}
}

var _ repository.TicketRepository = (*stubTicketRepo)(nil)

func (s *stubTicketRepo) ListByStatuses(ctx context.Context, statuses []domain.TicketStatus) ([]domain.Ticket, error) {
	s.mu.Lock()
	s.requested = append(s.requested, append([]domain.TicketStatus(nil), statuses...))
	listErr, extra, afterList := s.listErr, s.extra, s.afterList
	s.mu.Unlock()
	if listErr != nil {
		return nil, listErr
	}
	tickets, err := s.TicketRepository.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, err
	}
	if afterList != nil {
		afterList()
	}
	return append(tickets, extra...), nil
}

func (s *stubTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	hook := s.beforeUpdate
	s.beforeUpdate = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return s.TicketRepository.Update(ctx, ticket)
}

func (s *stubTicketRepo) RecordFirstResponse(ctx context.Context, ticketID string, timer domain.SLATimer) error {
	s.mu.Lock()
	failErr := s.failUpdate[ticketID]
	s.mu.Unlock()
	if failErr != nil {
		return failErr
	}
	return s.TicketRepository.RecordFirstResponse(ctx, ticketID, timer)
}

func (s *stubTicketRepo) UpdateBreached(ctx context.Context, ticketID string, timer domain.SLATimer) error {
	s.mu.Lock()
	failErr, shouldPanic, delay := s.failUpdate[ticketID], s.panicUpdate[ticketID], s.updateDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldPanic {
		panic("store exploded")
	}
	if failErr != nil {
		return failErr
	}
	if err := s.TicketRepository.UpdateBreached(ctx, ticketID, timer); err != nil {
		return err
	}
	s.mu.Lock()
	s.updatedIDs = append(s.updatedIDs, ticketID)
	s.mu.Unlock()
	return nil
}

func (s *stubTicketRepo) setFailUpdate(ticketID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failUpdate, ticketID)
		return
	}
	s.failUpdate[ticketID] = err
}

func (s *stubTicketRepo) updated() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.updatedIDs...)
}
