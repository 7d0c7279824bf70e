package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerHealth(t *testing.T) {
	handler := NewMetricsHandler(nil)
	c, w := testContext(t, http.MethodGet, "/health", nil)

	handler.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestMetricsHandlerReadyAllChecksPass(t *testing.T) {
	handler := NewMetricsHandler(nil,
		ReadinessCheck{Name: "postgres", Probe: func(ctx context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Probe: func(ctx context.Context) error { return nil }},
	)
	c, w := testContext(t, http.MethodGet, "/ready", nil)

	handler.Ready(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
	assert.Contains(t, w.Body.String(), `"redis":"ok"`)
}

func TestMetricsHandlerReadyFailingCheck(t *testing.T) {
	handler := NewMetricsHandler(nil,
		ReadinessCheck{Name: "postgres", Probe: func(ctx context.Context) error { return errors.New("connection refused") }},
	)
	c, w := testContext(t, http.MethodGet, "/ready", nil)

	handler.Ready(c)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestMetricsHandlerPrometheusUnavailable(t *testing.T) {
	handler := NewMetricsHandler(nil)
	c, w := testContext(t, http.MethodGet, "/metrics", nil)

	handler.Prometheus(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}
