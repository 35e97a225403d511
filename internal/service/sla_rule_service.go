package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/clock"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// SLARuleService resolves and manages per-organization SLA rules.
type SLARuleService struct {
	rules     repository.SLARuleRepository
	clock     clock.Clock
	logger    *zap.Logger
	validator *validator.Validate
}

// SLARuleInput carries the fields of a rule create or update. Durations are
// capped at ten years so due-date arithmetic cannot overflow time.Duration.
type SLARuleInput struct {
	OrganizationID       string `validate:"required"`
	Priority             string `validate:"required"`
	FirstResponseMinutes int    `validate:"gt=0,lte=5256000"`
	ResolutionMinutes    int    `validate:"gt=0,lte=5256000"`
}

// NewSLARuleService constructs the service.
func NewSLARuleService(rules repository.SLARuleRepository, clk clock.Clock, logger *zap.Logger) *SLARuleService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLARuleService{
		rules:     rules,
		clock:     clk,
		logger:    logger,
		validator: newValidator(),
	}
}

var _ RuleResolver = (*SLARuleService)(nil)

// Resolve returns the unique rule for (organizationID, priority).
func (s *SLARuleService) Resolve(ctx context.Context, organizationID string, priority domain.TicketPriority) (*domain.SLARule, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, apperrors.NewValidationError("organization_id is required", nil)
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": string(priority)})
	}

	rule, err := s.rules.FindByOrgAndPriority(ctx, organizationID, priority)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewSLARuleNotConfigured(organizationID, string(priority))
		}
		return nil, fmt.Errorf("resolve sla rule: %w", err)
	}
	return rule, nil
}

// CreateRule stores a new rule. A rule already configured for the same
// organization and priority is left untouched and a conflict is returned.
func (s *SLARuleService) CreateRule(ctx context.Context, input SLARuleInput) (*domain.SLARule, error) {
	priority, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rule := &domain.SLARule{
		ID:                   uuid.NewString(),
		OrganizationID:       strings.TrimSpace(input.OrganizationID),
		Priority:             priority,
		FirstResponseMinutes: input.FirstResponseMinutes,
		ResolutionMinutes:    input.ResolutionMinutes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ruleConflict(rule.OrganizationID, priority)
		}
		return nil, fmt.Errorf("create sla rule: %w", err)
	}

	s.logger.Info("sla rule created",
		zap.String("rule_id", rule.ID),
		zap.String("organization_id", rule.OrganizationID),
		zap.String("priority", string(rule.Priority)))
	return rule, nil
}

// UpdateRule replaces the durations, organization and priority of a rule.
func (s *SLARuleService) UpdateRule(ctx context.Context, id string, input SLARuleInput) (*domain.SLARule, error) {
	priority, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	updated.OrganizationID = strings.TrimSpace(input.OrganizationID)
	updated.Priority = priority
	updated.FirstResponseMinutes = input.FirstResponseMinutes
	updated.ResolutionMinutes = input.ResolutionMinutes
	updated.UpdatedAt = s.clock.Now()

	if err := s.rules.Update(ctx, &updated); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ruleConflict(updated.OrganizationID, priority)
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFound("sla rule", map[string]any{"id": id})
		}
		return nil, fmt.Errorf("update sla rule: %w", err)
	}

	s.logger.Info("sla rule updated",
		zap.String("rule_id", updated.ID),
		zap.String("organization_id", updated.OrganizationID),
		zap.String("priority", string(updated.Priority)))
	return &updated, nil
}

// GetRule fetches a rule by id.
func (s *SLARuleService) GetRule(ctx context.Context, id string) (*domain.SLARule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("sla rule", map[string]any{"id": id})
		}
		return nil, fmt.Errorf("get sla rule: %w", err)
	}
	return rule, nil
}

// ListRules returns the rules of one organization ordered by priority.
func (s *SLARuleService) ListRules(ctx context.Context, organizationID string) ([]domain.SLARule, error) {
	if strings.TrimSpace(organizationID) == "" {
		return nil, apperrors.NewValidationError("organization_id is required", nil)
	}
	rules, err := s.rules.ListByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list sla rules: %w", err)
	}
	return rules, nil
}

// DeleteRule removes a rule. Tickets created under it keep their timers.
func (s *SLARuleService) DeleteRule(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("sla rule", map[string]any{"id": id})
		}
		return fmt.Errorf("delete sla rule: %w", err)
	}
	s.logger.Info("sla rule deleted", zap.String("rule_id", id))
	return nil
}

func (s *SLARuleService) validate(input SLARuleInput) (domain.TicketPriority, error) {
	if err := s.validator.Struct(input); err != nil {
		return "", validationError(err)
	}
	priority, ok := domain.ParsePriority(input.Priority)
	if !ok {
		return "", apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	return priority, nil
}

func ruleConflict(organizationID string, priority domain.TicketPriority) error {
	return apperrors.NewConflict("an SLA rule already exists for this priority", map[string]any{
		"organization_id": organizationID,
		"priority":        string(priority),
	})
}
