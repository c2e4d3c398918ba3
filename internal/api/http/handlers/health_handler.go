package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/employee-directory/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// dependency is checked by the readiness endpoint. When configured is
// false its idle status is reported and it does not block readiness.
type dependency struct {
	name       string
	idle       string
	configured func() bool
	ping       func(context.Context) error
}

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	serviceName string
	version     string
	deps        []dependency
}

// NewHealthHandler returns a handler that checks the employee store and the
// event stream server. Either may be unconfigured.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		deps: []dependency{
			{name: "postgres", idle: "in-memory", configured: postgres.Configured, ping: postgres.Ping},
			{name: "redis", idle: "disabled", configured: redis.Configured, ping: redis.Ping},
		},
	}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	statuses := make(map[string]string, len(h.deps))
	failing := false
	for _, dep := range h.deps {
		if !dep.configured() {
			statuses[dep.name] = dep.idle
			continue
		}
		if err := dep.ping(ctx); err != nil {
			statuses[dep.name] = err.Error()
			failing = true
			continue
		}
		statuses[dep.name] = "ok"
	}

	if failing {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": statuses,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": statuses})
}
