package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

func TestComputeTimers(t *testing.T) {
	rule := domain.SLARule{FirstResponseMinutes: 60, ResolutionMinutes: 480}

	timer := ComputeTimers(rule, t0)

	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), timer.FirstResponseDue)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), timer.ResolutionDue)
	assert.False(t, timer.Breached)
	assert.Nil(t, timer.FirstResponseAt)
	assert.Nil(t, timer.ResolvedAt)
}

func TestCalculateTimers(t *testing.T) {
	f := newFixture(t)
	f.addRule(t, "org-1", domain.TicketPriorityHigh, 60, 480)
	calc := NewTimerCalculator(f.ruleSvc)
	ctx := context.Background()

	t.Run("deterministic for the same rule and timestamp", func(t *testing.T) {
		first, err := calc.CalculateTimers(ctx, "org-1", domain.TicketPriorityHigh, t0)
		require.NoError(t, err)
		second, err := calc.CalculateTimers(ctx, "org-1", domain.TicketPriorityHigh, t0)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, t0.Add(time.Hour), first.FirstResponseDue)
	})

	t.Run("missing rule propagates not found", func(t *testing.T) {
		_, err := calc.CalculateTimers(ctx, "org-1", domain.TicketPriorityLow, t0)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

		domainErr := apperrors.ToDomainError(err)
		assert.Contains(t, domainErr.Message, "no SLA rule configured")
		assert.Equal(t, "org-1", domainErr.Details["organization_id"])
		assert.Equal(t, "LOW", domainErr.Details["priority"])
	})

	t.Run("other organizations are not consulted", func(t *testing.T) {
		_, err := calc.CalculateTimers(ctx, "org-2", domain.TicketPriorityHigh, t0)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	})
}

func TestCheckBreach(t *testing.T) {
	timer := *dueTimer(t0.Add(30*time.Minute), t0.Add(4*time.Hour))

	tests := []struct {
		name     string
		timer    domain.SLATimer
		now      time.Time
		breached bool
	}{
		{"before first response due", timer, t0.Add(10 * time.Minute), false},
		{"exactly at due is not a breach", timer, t0.Add(30 * time.Minute), false},
		{"first response overdue", timer, t0.Add(31 * time.Minute), true},
		{
			"late first response clears condition A",
			domain.SLATimer{FirstResponseDue: timer.FirstResponseDue, ResolutionDue: timer.ResolutionDue, FirstResponseAt: timePtr(t0.Add(35 * time.Minute)), Breached: true},
			t0.Add(40 * time.Minute),
			false,
		},
		{
			"resolution overdue despite first response",
			domain.SLATimer{FirstResponseDue: timer.FirstResponseDue, ResolutionDue: timer.ResolutionDue, FirstResponseAt: timePtr(t0.Add(5 * time.Minute))},
			t0.Add(5 * time.Hour),
			true,
		},
		{
			"resolved and responded never breach",
			domain.SLATimer{FirstResponseDue: timer.FirstResponseDue, ResolutionDue: timer.ResolutionDue, FirstResponseAt: timePtr(t0), ResolvedAt: timePtr(t0.Add(time.Hour))},
			t0.Add(100 * time.Hour),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.breached, CheckBreach(tt.timer, tt.now).Breached)
		})
	}
}

func TestCheckBreach_MonotonicWithoutMilestones(t *testing.T) {
	timer := *dueTimer(t0.Add(30*time.Minute), t0.Add(4*time.Hour))

	seen := false
	for minute := 0; minute <= 300; minute += 7 {
		got := CheckBreach(timer, t0.Add(time.Duration(minute)*time.Minute)).Breached
		if seen {
			require.True(t, got, "breach cleared at minute %d", minute)
		}
		seen = seen || got
	}
	assert.True(t, seen)
}

func TestCheckBreach_DoesNotMutateInput(t *testing.T) {
	respondedAt := t0.Add(time.Minute)
	input := domain.SLATimer{FirstResponseDue: t0, ResolutionDue: t0, FirstResponseAt: &respondedAt}

	out := CheckBreach(input, t0.Add(time.Hour))
	require.True(t, out.Breached)
	*out.FirstResponseAt = t0.Add(99 * time.Hour)

	assert.False(t, input.Breached)
	assert.Equal(t, t0.Add(time.Minute), *input.FirstResponseAt)
}
