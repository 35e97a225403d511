package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTransition_MatchesTable(t *testing.T) {
	allowed := map[TicketStatus]map[TicketStatus]bool{
		TicketStatusNew:      {TicketStatusOpen: true, TicketStatusClosed: true},
		TicketStatusOpen:     {TicketStatusPending: true, TicketStatusResolved: true, TicketStatusClosed: true},
		TicketStatusPending:  {TicketStatusOpen: true, TicketStatusResolved: true, TicketStatusClosed: true},
		TicketStatusResolved: {TicketStatusOpen: true, TicketStatusClosed: true},
		TicketStatusClosed:   {TicketStatusOpen: true},
	}

	for _, from := range AllStatuses() {
		for _, to := range AllStatuses() {
			want := allowed[from][to]
			assert.Equal(t, want, IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsValidTransition_SelfTransitionsRejected(t *testing.T) {
	for _, s := range AllStatuses() {
		assert.False(t, IsValidTransition(s, s), "self transition %s", s)
	}
}

func TestIsValidTransition_UnknownStatus(t *testing.T) {
	assert.False(t, IsValidTransition("ARCHIVED", TicketStatusOpen))
	assert.False(t, IsValidTransition(TicketStatusOpen, "ARCHIVED"))
	assert.False(t, IsValidTransition("", ""))
}

func TestClosedCanBeReopened(t *testing.T) {
	assert.Equal(t, []TicketStatus{TicketStatusOpen}, AllowedTransitions(TicketStatusClosed))
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	targets := AllowedTransitions(TicketStatusNew)
	targets[0] = TicketStatusResolved

	assert.True(t, IsValidTransition(TicketStatusNew, TicketStatusOpen))
	assert.False(t, IsValidTransition(TicketStatusNew, TicketStatusResolved))
}

func TestActiveStatuses(t *testing.T) {
	assert.ElementsMatch(t, []TicketStatus{TicketStatusNew, TicketStatusOpen, TicketStatusPending}, ActiveStatuses())
	assert.True(t, TicketStatusPending.IsActive())
	assert.False(t, TicketStatusResolved.IsActive())
	assert.False(t, TicketStatusClosed.IsActive())
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in    string
		want  TicketPriority
		valid bool
	}{
		{"high", TicketPriorityHigh, true},
		{"URGENT", TicketPriorityUrgent, true},
		{" Low ", TicketPriorityLow, true},
		{"critical", "CRITICAL", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePriority(tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCommentFirstResponseCandidate(t *testing.T) {
	assert.True(t, TicketComment{AuthorRole: ActorRoleAgent, Visibility: CommentVisibilityPublic}.IsFirstResponseCandidate())
	assert.True(t, TicketComment{AuthorRole: ActorRoleAdmin, Visibility: CommentVisibilityPublic}.IsFirstResponseCandidate())
	assert.False(t, TicketComment{AuthorRole: ActorRoleAgent, Visibility: CommentVisibilityInternal}.IsFirstResponseCandidate())
	assert.False(t, TicketComment{AuthorRole: ActorRoleCustomer, Visibility: CommentVisibilityPublic}.IsFirstResponseCandidate())
}

func TestSLATimerClone(t *testing.T) {
	at := mustTime(t, "2024-01-01T00:30:00Z")
	timer := SLATimer{FirstResponseAt: &at}

	cloned := timer.Clone()
	*cloned.FirstResponseAt = mustTime(t, "2024-02-01T00:00:00Z")

	assert.Equal(t, mustTime(t, "2024-01-01T00:30:00Z"), *timer.FirstResponseAt)
	assert.Nil(t, cloned.ResolvedAt)
}
