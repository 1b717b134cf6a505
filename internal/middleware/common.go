package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// Register attaches the common middlewares used across the service.
func Register(app *fiber.App, logger zerolog.Logger) {
	app.Use(recover.New())
	app.Use(CorrelationID())
	app.Use(requestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))
}

// requestLogger emits one structured line per request.
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()

		entry := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Logger()

		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error().Msg("request failed")
		case status >= fiber.StatusBadRequest:
			entry.Warn().Msg("request completed with client error")
		default:
			entry.Info().Msg("request completed")
		}

		return err
	}
}
