package domain

import "time"

// Principal is the authenticated caller as carried by an access token.
type Principal struct {
	SubjectID      string
	OrganizationID string
	Role           ActorRole
	ExpiresAt      time.Time
}

// IsAdmin reports whether the principal administers its organization.
func (p Principal) IsAdmin() bool {
	return p.Role == ActorRoleAdmin
}
