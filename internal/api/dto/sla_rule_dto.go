package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SLARuleRequest payload for create and update. Organization comes from the token.
type SLARuleRequest struct {
	Priority             string `json:"priority"`
	FirstResponseMinutes int    `json:"first_response_minutes"`
	ResolutionMinutes    int    `json:"resolution_minutes"`
}

// SLARuleResponse represents a rule.
type SLARuleResponse struct {
	ID                   string                `json:"id"`
	OrganizationID       string                `json:"organization_id"`
	Priority             domain.TicketPriority `json:"priority"`
	FirstResponseMinutes int                   `json:"first_response_minutes"`
	ResolutionMinutes    int                   `json:"resolution_minutes"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// NewSLARuleResponse maps a domain rule.
func NewSLARuleResponse(rule *domain.SLARule) SLARuleResponse {
	return SLARuleResponse{
		ID:                   rule.ID,
		OrganizationID:       rule.OrganizationID,
		Priority:             rule.Priority,
		FirstResponseMinutes: rule.FirstResponseMinutes,
		ResolutionMinutes:    rule.ResolutionMinutes,
		CreatedAt:            rule.CreatedAt,
		UpdatedAt:            rule.UpdatedAt,
	}
}
