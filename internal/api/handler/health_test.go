package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(nil)
	c, rec := newTestContext(http.MethodGet, "/health", "")

	if err := h.Liveness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthCheck{"storage": ok, "redis": ok})
		c, rec := newTestContext(http.MethodGet, "/health/ready", "")

		if err := h.Readiness(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		var resp readinessResponse
		decodeBody(t, rec, &resp)
		if rec.Code != http.StatusOK || resp.Status != "ok" || len(resp.Dependencies) != 2 {
			t.Fatalf("unexpected response %d %+v", rec.Code, resp)
		}
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthCheck{"storage": ok, "amqp": down})
		c, rec := newTestContext(http.MethodGet, "/health/ready", "")

		if err := h.Readiness(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		var resp readinessResponse
		decodeBody(t, rec, &resp)
		if rec.Code != http.StatusServiceUnavailable || resp.Status != "degraded" {
			t.Fatalf("unexpected response %d %+v", rec.Code, resp)
		}
		if resp.Dependencies["amqp"].Error != "connection refused" || resp.Dependencies["storage"].Status != "ok" {
			t.Fatalf("unexpected dependencies: %+v", resp.Dependencies)
		}
	})
}
