package middleware

import (
	"time"

	"github.com/Nexavor/yidongwagnpan/pkg/logger"
	"github.com/gofiber/fiber/v2"
)

// RequestLogger emits one structured line per request with method, path,
// status and latency.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("http_request", err, fields)
		} else {
			logger.Info("http_request", fields)
		}
		return err
	}
}

// SecurityLogger flags rejected authentication and authorization attempts so
// they stand out from routine request noise.
func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if status == fiber.StatusUnauthorized || status == fiber.StatusForbidden {
			logger.Warn("access_denied", map[string]interface{}{
				"method": c.Method(),
				"path":   c.Path(),
				"status": status,
				"ip":     c.IP(),
			})
		}
		return err
	}
}
