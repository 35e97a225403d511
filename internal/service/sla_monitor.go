package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/helpdesk-sla/internal/clock"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
)

const maxSummaryErrors = 10

// SLAMonitorOptions tunes a sweep. Concurrency below 2 evaluates tickets
// sequentially; a zero Timeout leaves the sweep unbounded.
type SLAMonitorOptions struct {
	Concurrency int
	Timeout     time.Duration
}

// SLAMonitorDependencies bundles collaborators for the monitor.
type SLAMonitorDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Clock      clock.Clock
	Logger     *zap.Logger
	Options    SLAMonitorOptions
}

// SLAMonitor re-evaluates the breach flag of every active ticket across all
// organizations and persists the ones that changed.
type SLAMonitor struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	opts       SLAMonitorOptions
}

// SweepError records one ticket that could not be evaluated.
type SweepError struct {
	TicketID string `json:"ticket_id"`
	Message  string `json:"message"`
}

// SweepSummary is the outcome of one Execute call. Errors holds at most the
// first ten failures; ErrorCount holds all of them.
type SweepSummary struct {
	TotalTickets  int           `json:"total_tickets"`
	NewlyBreached int           `json:"newly_breached"`
	Updated       int           `json:"updated"`
	Cleared       int           `json:"cleared"`
	Skipped       int           `json:"skipped"`
	ErrorCount    int           `json:"error_count"`
	Errors        []SweepError  `json:"errors"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	TimedOut      bool          `json:"timed_out"`
}

type sweepOutcome int

const (
	outcomeUnchanged sweepOutcome = iota
	outcomeBreached
	outcomeCleared
	outcomeSkipped
)

// NewSLAMonitor constructs the monitor.
func NewSLAMonitor(deps SLAMonitorDependencies) *SLAMonitor {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &SLAMonitor{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		logger:     deps.Logger,
		opts:       deps.Options,
	}
}

// Execute runs one sweep. Only a failure to load the active tickets is
// returned as an error; per-ticket failures are counted in the summary and
// never stop the remaining tickets from being evaluated.
func (m *SLAMonitor) Execute(ctx context.Context) (SweepSummary, error) {
	summary := SweepSummary{StartedAt: m.clock.Now(), Errors: []SweepError{}}
	wallStart := time.Now()

	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	tickets, err := m.tickets.ListByStatuses(ctx, domain.ActiveStatuses())
	if err != nil {
		summary.Duration = time.Since(wallStart)
		m.logger.Error("sla sweep failed", zap.Error(err), zap.Duration("duration", summary.Duration))
		m.record(summary, observability.SweepResultFailed)
		return summary, fmt.Errorf("load active tickets: %w", err)
	}
	summary.TotalTickets = len(tickets)

	now := m.clock.Now()
	var mu sync.Mutex
	tally := func(ticketID string, outcome sweepOutcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			summary.ErrorCount++
			if len(summary.Errors) < maxSummaryErrors {
				summary.Errors = append(summary.Errors, SweepError{TicketID: ticketID, Message: err.Error()})
			}
			return
		}
		switch outcome {
		case outcomeBreached:
			summary.NewlyBreached++
			summary.Updated++
		case outcomeCleared:
			summary.Cleared++
			summary.Updated++
		case outcomeSkipped:
			summary.Skipped++
		}
	}
	stopped := func() bool {
		if ctx.Err() == nil {
			return false
		}
		mu.Lock()
		summary.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		mu.Unlock()
		return true
	}

	if m.opts.Concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(m.opts.Concurrency)
		for i := range tickets {
			ticket := tickets[i]
			if stopped() {
				break
			}
			g.Go(func() error {
				if stopped() {
					return nil
				}
				outcome, err := m.safeEvaluate(ctx, ticket, now)
				tally(ticket.ID, outcome, err)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range tickets {
			if stopped() {
				break
			}
			outcome, err := m.safeEvaluate(ctx, tickets[i], now)
			tally(tickets[i].ID, outcome, err)
		}
	}

	summary.Duration = time.Since(wallStart)
	m.logSummary(summary)

	result := observability.SweepResultSuccess
	switch {
	case summary.TimedOut:
		result = observability.SweepResultTimeout
	case summary.ErrorCount > 0:
		result = observability.SweepResultPartial
	}
	m.record(summary, result)
	return summary, nil
}

// safeEvaluate turns a panic while handling one ticket into that ticket's error.
func (m *SLAMonitor) safeEvaluate(ctx context.Context, ticket domain.Ticket, now time.Time) (outcome sweepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.evaluate(ctx, ticket, now)
}

func (m *SLAMonitor) evaluate(ctx context.Context, ticket domain.Ticket, now time.Time) (sweepOutcome, error) {
	if !ticket.Status.IsActive() {
		return outcomeSkipped, nil
	}
	if ticket.SLATimers == nil {
		m.logger.Warn("ticket has no sla timers; skipping",
			zap.String("ticket_id", ticket.ID),
			zap.String("organization_id", ticket.OrganizationID))
		return outcomeSkipped, nil
	}

	previous := ticket.SLATimers.Breached
	updated := CheckBreach(*ticket.SLATimers, now)
	if updated.Breached == previous {
		return outcomeUnchanged, nil
	}

	if err := m.tickets.UpdateBreached(ctx, ticket.ID, updated); err != nil {
		if errors.Is(err, repository.ErrStale) {
			// A comment or transition landed after the fetch and already
			// recomputed the flag from the newer milestones.
			m.logger.Info("ticket changed during sweep; skipping",
				zap.String("ticket_id", ticket.ID),
				zap.String("organization_id", ticket.OrganizationID))
			return outcomeSkipped, nil
		}
		m.logger.Error("failed to persist sla timer",
			zap.String("ticket_id", ticket.ID),
			zap.String("organization_id", ticket.OrganizationID),
			zap.Error(err))
		return outcomeUnchanged, err
	}

	if !updated.Breached {
		m.logger.Info("sla breach cleared",
			zap.String("ticket_id", ticket.ID),
			zap.String("organization_id", ticket.OrganizationID),
			zap.String("priority", string(ticket.Priority)))
		return outcomeCleared, nil
	}

	m.logger.Warn("sla breached",
		zap.String("ticket_id", ticket.ID),
		zap.String("organization_id", ticket.OrganizationID),
		zap.String("priority", string(ticket.Priority)),
		zap.Time("first_response_due", updated.FirstResponseDue),
		zap.Time("resolution_due", updated.ResolutionDue))
	m.publishBreach(ctx, ticket, updated, now)
	return outcomeBreached, nil
}

func (m *SLAMonitor) publishBreach(ctx context.Context, ticket domain.Ticket, timer domain.SLATimer, now time.Time) {
	if m.dispatcher == nil {
		return
	}
	_ = m.dispatcher.Publish(ctx, events.Event{
		ID:             uuid.NewString(),
		Type:           events.EventSLABreached,
		TicketID:       ticket.ID,
		OrganizationID: ticket.OrganizationID,
		Actor:          events.SystemActor(),
		Timestamp:      now,
		Payload: events.SLABreachedPayload{
			Priority:         ticket.Priority,
			Status:           ticket.Status,
			FirstResponseDue: timer.FirstResponseDue,
			ResolutionDue:    timer.ResolutionDue,
			FirstResponseAt:  timer.FirstResponseAt,
			DetectedAt:       now,
		},
	})
}

func (m *SLAMonitor) logSummary(summary SweepSummary) {
	fields := []zap.Field{
		zap.Int("total_tickets", summary.TotalTickets),
		zap.Int("newly_breached", summary.NewlyBreached),
		zap.Int("updated", summary.Updated),
		zap.Int("cleared", summary.Cleared),
		zap.Int("skipped", summary.Skipped),
		zap.Int("error_count", summary.ErrorCount),
		zap.Time("started_at", summary.StartedAt),
		zap.Duration("duration", summary.Duration),
		zap.Bool("timed_out", summary.TimedOut),
	}
	if summary.ErrorCount > 0 {
		fields = append(fields, zap.Any("errors", summary.Errors))
	}
	if summary.ErrorCount > 0 || summary.TimedOut {
		m.logger.Warn("sla sweep completed", fields...)
		return
	}
	m.logger.Info("sla sweep completed", fields...)
}

func (m *SLAMonitor) record(summary SweepSummary, result string) {
	m.metrics.RecordSweep(observability.SweepStats{
		Result:        result,
		Duration:      summary.Duration,
		Evaluated:     summary.TotalTickets,
		NewlyBreached: summary.NewlyBreached,
		Errors:        summary.ErrorCount,
		FinishedAt:    m.clock.Now(),
	})
}
