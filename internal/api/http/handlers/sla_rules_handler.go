package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// SLARulesHandler manages an organization's SLA rules. Admin only; the
// organization always comes from the caller's token.
type SLARulesHandler struct {
	service *service.SLARuleService
}

// NewSLARulesHandler constructs handler.
func NewSLARulesHandler(ruleService *service.SLARuleService) *SLARulesHandler {
	return &SLARulesHandler{service: ruleService}
}

// ListRules GET /sla-rules.
func (h *SLARulesHandler) ListRules(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	rules, err := h.service.ListRules(c.UserContext(), principal.OrganizationID)
	if err != nil {
		return err
	}
	items := make([]dto.SLARuleResponse, 0, len(rules))
	for i := range rules {
		items = append(items, dto.NewSLARuleResponse(&rules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateRule POST /sla-rules.
func (h *SLARulesHandler) CreateRule(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.SLARuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule, err := h.service.CreateRule(c.UserContext(), ruleInput(principal, req))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewSLARuleResponse(rule)})
}

// GetRule GET /sla-rules/:id.
func (h *SLARulesHandler) GetRule(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	rule, err := h.ownedRule(c, principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLARuleResponse(rule)})
}

// UpdateRule PUT /sla-rules/:id.
func (h *SLARulesHandler) UpdateRule(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.ownedRule(c, principal); err != nil {
		return err
	}
	var req dto.SLARuleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	rule, err := h.service.UpdateRule(c.UserContext(), c.Params("id"), ruleInput(principal, req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLARuleResponse(rule)})
}

// DeleteRule DELETE /sla-rules/:id.
func (h *SLARulesHandler) DeleteRule(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if _, err := h.ownedRule(c, principal); err != nil {
		return err
	}
	if err := h.service.DeleteRule(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SLARulesHandler) ownedRule(c *fiber.Ctx, principal *domain.Principal) (*domain.SLARule, error) {
	id := c.Params("id")
	rule, err := h.service.GetRule(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if rule.OrganizationID != principal.OrganizationID {
		return nil, apperrors.NewNotFound("sla rule", map[string]any{"id": id})
	}
	return rule, nil
}

func ruleInput(principal *domain.Principal, req dto.SLARuleRequest) service.SLARuleInput {
	return service.SLARuleInput{
		OrganizationID:       principal.OrganizationID,
		Priority:             req.Priority,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
	}
}
