package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// RuleResolver finds the SLA rule for an organization and priority.
type RuleResolver interface {
	Resolve(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error)
}

// TimerCalculator derives a ticket's SLA deadlines from its organization's rule.
type TimerCalculator struct {
	rules RuleResolver
}

// NewTimerCalculator constructs the calculator.
func NewTimerCalculator(rules RuleResolver) *TimerCalculator {
	return &TimerCalculator{rules: rules}
}

// CalculateTimers resolves the rule and computes fresh timers anchored at
// createdAt. Resolution errors, including a missing rule, are returned as is.
func (c *TimerCalculator) CalculateTimers(ctx context.Context, organizationID string, priority domain.TicketPriority, createdAt time.Time) (domain.SLATimer, error) {
	rule, err := c.rules.Resolve(ctx, organizationID, priority)
	if err != nil {
		return domain.SLATimer{}, err
	}
	return ComputeTimers(*rule, createdAt), nil
}

// ComputeTimers is the pure part of CalculateTimers.
func ComputeTimers(rule domain.SLARule, createdAt time.Time) domain.SLATimer {
	return domain.SLATimer{
		FirstResponseDue: createdAt.Add(time.Duration(rule.FirstResponseMinutes) * time.Minute),
		ResolutionDue:    createdAt.Add(time.Duration(rule.ResolutionMinutes) * time.Minute),
	}
}

// CheckBreach returns a copy of timer with Breached recomputed against now.
// A deadline counts as missed only once it is strictly before now and the
// matching milestone has not been recorded. The input is never modified.
func CheckBreach(timer domain.SLATimer, now time.Time) domain.SLATimer {
	out := timer.Clone()
	firstResponseMissed := out.FirstResponseAt == nil && out.FirstResponseDue.Before(now)
	resolutionMissed := out.ResolvedAt == nil && out.ResolutionDue.Before(now)
	out.Breached = firstResponseMissed || resolutionMissed
	return out
}
