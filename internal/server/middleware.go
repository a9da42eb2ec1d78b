package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware copies the request id and the caller's correlation id into
// the request context so the context-aware logger and the backend client see
// them in every layer.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = context.WithValue(ctx, observability.RequestID, rid)
		}

		if cid := c.Get("X-Correlation-ID"); cid != "" {
			ctx = observability.WithCorrelationID(ctx, cid)
		} else {
			ctx = observability.EnsureCorrelationID(ctx)
		}
		c.Set("X-Correlation-ID", observability.ExtractCorrelationID(ctx))

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog
func StructuredLogger(logger *observability.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		// The error handler has not written the response yet.
		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}
		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}

		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			fields = append(fields, slog.String("error", err.Error()))
			logger.ErrorContext(c.UserContext(), "request failed", fields...)
		case err != nil:
			fields = append(fields, slog.String("error", err.Error()))
			logger.WarnContext(c.UserContext(), "request rejected", fields...)
		default:
			logger.InfoContext(c.UserContext(), "request processed", fields...)
		}

		return err
	}
}
