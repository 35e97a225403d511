package domain

import "time"

// ActorRole indicates who is acting on a ticket.
type ActorRole string

const (
	ActorRoleCustomer ActorRole = "CUSTOMER"
	ActorRoleAgent    ActorRole = "AGENT"
	ActorRoleAdmin    ActorRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r ActorRole) Valid() bool {
	switch r {
	case ActorRoleCustomer, ActorRoleAgent, ActorRoleAdmin:
		return true
	}
	return false
}

// IsStaff is true for agents and admins.
func (r ActorRole) IsStaff() bool {
	return r == ActorRoleAgent || r == ActorRoleAdmin
}

// CommentVisibility differentiates between replies and internal notes.
type CommentVisibility string

const (
	CommentVisibilityPublic   CommentVisibility = "PUBLIC"
	CommentVisibilityInternal CommentVisibility = "INTERNAL"
)

// TicketComment captures communications in a ticket thread.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorID   string
	AuthorRole ActorRole
	Visibility CommentVisibility
	Body       string
	CreatedAt  time.Time
}

// IsFirstResponseCandidate reports whether the comment counts as the
// ticket's first response: a public reply written by staff.
func (c TicketComment) IsFirstResponseCandidate() bool {
	return c.Visibility == CommentVisibilityPublic && c.AuthorRole.IsStaff()
}
