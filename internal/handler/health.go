package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/config"
)

// HealthCheck reports service liveness.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": cfg.AppName,
			"env":     cfg.AppEnv,
		})
	}
}
