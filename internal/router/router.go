package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	GradeHandler      *handler.GradeHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/healthz", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions"))
	}
	if deps.GradeHandler != nil {
		deps.GradeHandler.Register(api.Group("/question-lists"))
	}
}
