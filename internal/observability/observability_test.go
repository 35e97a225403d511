package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk-sla/internal/config"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordSweep(SweepStats{Result: SweepResultSuccess})
	})
}

func TestMetrics_RecordSweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	finished := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

	m.RecordSweep(SweepStats{
		Result:        SweepResultPartial,
		Duration:      2 * time.Second,
		Evaluated:     3,
		NewlyBreached: 1,
		Errors:        1,
		FinishedAt:    finished,
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweeps.WithLabelValues(SweepResultPartial)))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ticketsEvaluated))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.breachesDetected))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sweepErrors))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSweepFinished))
}

func TestRequestLogger_LogsAndCountsByRoute(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewMetrics(prometheus.NewRegistry())

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), m))
	app.Get("/tickets/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/tickets/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/tickets/:id", entries[0].ContextMap()["route"])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/tickets/:id", "204")))
}

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "shouty"}, "production")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}
