package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-sla/internal/service"
	"github.com/spec-kit/helpdesk-sla/internal/worker"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

type recordingTrigger struct {
	ctx     context.Context
	err     error
	summary service.SweepSummary
}

func (r *recordingTrigger) RunOnce(ctx context.Context) (service.SweepSummary, error) {
	r.ctx = ctx
	return r.summary, r.err
}

func (r *recordingTrigger) NextRun() time.Time { return time.Time{} }

func newSweepApp(trigger SweepTrigger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": domainErr.Code}})
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Millisecond)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})
	h := NewSLASweepHandler(trigger)
	app.Post("/sweeps", h.RunSweep)
	app.Get("/sweeps/next", h.Schedule)
	return app
}

func TestSLASweepHandler_RunSweepOutlivesRequestDeadline(t *testing.T) {
	trigger := &recordingTrigger{summary: service.SweepSummary{TotalTickets: 2}}
	app := newSweepApp(trigger)

	resp, err := app.Test(httptest.NewRequest("POST", "/sweeps", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NotNil(t, trigger.ctx)
	_, hasDeadline := trigger.ctx.Deadline()
	assert.False(t, hasDeadline)
	assert.NoError(t, trigger.ctx.Err())
}

func TestSLASweepHandler_RunSweepInProgress(t *testing.T) {
	app := newSweepApp(&recordingTrigger{err: worker.ErrSweepInProgress})

	resp, err := app.Test(httptest.NewRequest("POST", "/sweeps", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestSLASweepHandler_ScheduleWithoutNextRun(t *testing.T) {
	app := newSweepApp(&recordingTrigger{})

	resp, err := app.Test(httptest.NewRequest("GET", "/sweeps/next", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
