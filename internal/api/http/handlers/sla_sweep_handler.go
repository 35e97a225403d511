package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// SweepTrigger runs a single sweep outside the schedule.
type SweepTrigger interface {
	RunOnce(ctx context.Context) (service.SweepSummary, error)
	NextRun() time.Time
}

// SLASweepHandler lets admins trigger and inspect the breach sweep.
type SLASweepHandler struct {
	trigger SweepTrigger
}

// NewSLASweepHandler constructs handler.
func NewSLASweepHandler(trigger SweepTrigger) *SLASweepHandler {
	return &SLASweepHandler{trigger: trigger}
}

// RunSweep POST /sla/sweeps. Returns 409 while a scheduled sweep is running.
// The sweep is detached from the request deadline and bounded by its own
// timeout instead.
func (h *SLASweepHandler) RunSweep(c *fiber.Ctx) error {
	summary, err := h.trigger.RunOnce(context.WithoutCancel(c.UserContext()))
	if err != nil {
		if errors.Is(err, worker.ErrSweepInProgress) {
			return apperrors.NewConflict("sla sweep already in progress", nil)
		}
		return err
	}
	return c.JSON(fiber.Map{"data": summary})
}

// Schedule GET /sla/sweeps/next.
func (h *SLASweepHandler) Schedule(c *fiber.Ctx) error {
	next := h.trigger.NextRun()
	data := fiber.Map{"next_run": nil}
	if !next.IsZero() {
		data["next_run"] = next
	}
	return c.JSON(fiber.Map{"data": data})
}
